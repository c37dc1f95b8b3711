package httpapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrBodyWrapsMessage(t *testing.T) {
	body := errBody(errors.New("boom"))
	assert.Equal(t, "boom", body["error"])
}
