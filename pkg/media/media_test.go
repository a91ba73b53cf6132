package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRescaleQ(t *testing.T) {
	tests := []struct {
		name     string
		a        int64
		from, to Rational
		want     int64
	}{
		{"frame to 90k", 1, NewRational(1, 25), NewRational(1, 90000), 3600},
		{"half rounds up", 3, NewRational(1, 3), NewRational(1, 2), 2},
		{"negative half rounds away", -3, NewRational(1, 3), NewRational(1, 2), -2},
		{"samples to ms", 48000, NewRational(1, 48000), NewRational(1, 1000), 1000},
		{"large value stays exact", 1 << 60, NewRational(1, 1), NewRational(1, 1), 1 << 60},
		{"zero target", 10, NewRational(1, 25), NewRational(0, 1), NoPTS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RescaleQ(tt.a, tt.from, tt.to))
		})
	}
}

func TestRescaleTSPassesNoPTS(t *testing.T) {
	assert.Equal(t, NoPTS, RescaleTS(NoPTS, NewRational(1, 25), NewRational(1, 1000)))
	assert.Equal(t, int64(7), RescaleTS(7, Rational{}, NewRational(1, 1000)))
	assert.Equal(t, int64(280), RescaleTS(7, NewRational(1, 25), NewRational(1, 1000)))
}

func TestMediaTypeText(t *testing.T) {
	for _, mt := range []MediaType{MediaTypeVideo, MediaTypeAudio, MediaTypeSubtitle, MediaTypeUnknown} {
		text, err := mt.MarshalText()
		assert.NoError(t, err)

		var back MediaType
		assert.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, mt, back)
	}
	assert.Equal(t, MediaTypeUnknown, ParseMediaType("data"))
}

func TestFloatToRational(t *testing.T) {
	assert.Equal(t, NewRational(30, 1), FloatToRational(30, 90000))
	assert.Equal(t, NewRational(30000, 1001), FloatToRational(30000.0/1001.0, 90000))
	assert.Equal(t, NewRational(25, 2), FloatToRational(12.5, 90000))
	assert.Equal(t, Rational{}, FloatToRational(math.NaN(), 90000))
}
