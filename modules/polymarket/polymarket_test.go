package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSlugsTrimsAndDropsEmpty(t *testing.T) {
	got := splitSlugs(" will-it-rain, election-2028 ,, btc-100k")
	assert.Equal(t, []string{"will-it-rain", "election-2028", "btc-100k"}, got)
}

func TestSplitSlugsEmptyInput(t *testing.T) {
	assert.Empty(t, splitSlugs(""))
}
