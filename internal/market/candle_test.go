package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropUnclosed(t *testing.T) {
	now := int64(1_000_000)
	closed := Candle{OpenTime: now - 120_000, CloseTime: now - 60_001, Close: 100}
	forming := Candle{OpenTime: now - 60_000, CloseTime: now + 59_999, Close: 101}

	assert.Empty(t, DropUnclosed(nil, now))
	assert.Equal(t, []Candle{closed}, DropUnclosed([]Candle{closed, forming}, now))
	assert.Equal(t, []Candle{closed}, DropUnclosed([]Candle{closed}, now))
}
