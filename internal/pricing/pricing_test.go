package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomDatePrice(t *testing.T) {
	tests := []struct {
		name     string
		perStop  int64
		numStops int
		want     int64
	}{
		{"three stops at $15", 1500, 3, 4664},
		{"single stop at $10", 1000, 1, 1060},
		{"free stops still pay the fixed fee", 0, 2, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CustomDatePrice(tt.perStop, tt.numStops))
		})
	}
}

func TestCustomDatePriceWithoutStripeFee(t *testing.T) {
	assert.Equal(t, int64(45), CustomDatePriceWithoutStripeFee(1500, 3))
	assert.Equal(t, int64(13), CustomDatePriceWithoutStripeFee(1250, 1))
	assert.Equal(t, int64(12), CustomDatePriceWithoutStripeFee(1249, 1))
}

func TestTastemakerPayoutCents(t *testing.T) {
	assert.Equal(t, int64(3600), TastemakerPayoutCents(1500, 3))
	assert.Equal(t, int64(800), TastemakerPayoutCents(500, 2))
}
