package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageIDOfExtractsNestedID(t *testing.T) {
	data := []byte(`{"type":"MessageCreated","message":{"id":"abc123","message":"hi"}}`)
	assert.Equal(t, "abc123", messageIDOf(data))
}

func TestMessageIDOfMalformedPayload(t *testing.T) {
	assert.Equal(t, "", messageIDOf([]byte(`not json`)))
}

func TestMessageIDOfMissingField(t *testing.T) {
	assert.Equal(t, "", messageIDOf([]byte(`{"type":"MessageCreated"}`)))
}
