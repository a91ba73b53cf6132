package media

import (
	"fmt"
	"math"
	"math/big"
)

type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeSubtitle
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// ParseMediaType is the inverse of MediaType.String. Unrecognised names map to MediaTypeUnknown.
func ParseMediaType(s string) MediaType {
	switch s {
	case "video":
		return MediaTypeVideo
	case "audio":
		return MediaTypeAudio
	case "subtitle":
		return MediaTypeSubtitle
	default:
		return MediaTypeUnknown
	}
}

// NoPTS marks an unset timestamp, matching the engine's AV_NOPTS_VALUE.
const NoPTS int64 = math.MinInt64

// Rational is a timebase or frame rate expressed as Num/Den.
type Rational struct {
	Num int `json:"num" yaml:"num"`
	Den int `json:"den" yaml:"den"`
}

func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// RescaleQ converts a from units of `from` into units of `to`, rounding to the
// nearest value with halves away from zero. Intermediate products are exact.
// A zero target rational, or a result that overflows int64, yields NoPTS.
func RescaleQ(a int64, from, to Rational) int64 {
	b := new(big.Int).Mul(big.NewInt(int64(from.Num)), big.NewInt(int64(to.Den)))
	c := new(big.Int).Mul(big.NewInt(int64(to.Num)), big.NewInt(int64(from.Den)))
	if c.Sign() == 0 {
		return NoPTS
	}

	n := new(big.Int).Mul(big.NewInt(a), b)
	negative := (n.Sign() < 0) != (c.Sign() < 0)
	n.Abs(n)
	c.Abs(c)

	n.Add(n, new(big.Int).Rsh(c, 1))
	n.Quo(n, c)
	if negative {
		n.Neg(n)
	}

	if !n.IsInt64() {
		return NoPTS
	}
	return n.Int64()
}

// RescaleTS is RescaleQ for timestamps: NoPTS passes through untouched, and so
// does any value when either timebase is unset.
func RescaleTS(ts int64, from, to Rational) int64 {
	if ts == NoPTS || from.IsZero() || to.IsZero() || from == to {
		return ts
	}
	return RescaleQ(ts, from, to)
}

func (t MediaType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *MediaType) UnmarshalText(text []byte) error {
	*t = ParseMediaType(string(text))
	return nil
}

// FloatToRational approximates f with a denominator no larger than maxDen,
// using continued fractions. 29.97 becomes 30000/1001.
func FloatToRational(f float64, maxDen int) Rational {
	if math.IsNaN(f) || math.IsInf(f, 0) || maxDen <= 0 {
		return Rational{}
	}
	negative := f < 0
	if negative {
		f = -f
	}

	// h/k are successive convergents.
	h0, h1 := 0, 1
	k0, k1 := 1, 0
	x := f
	for i := 0; i < 64; i++ {
		a := int(math.Floor(x))
		h2 := a*h1 + h0
		k2 := a*k1 + k0
		if k2 > maxDen {
			break
		}
		h0, h1 = h1, h2
		k0, k1 = k1, k2
		frac := x - float64(a)
		if frac < 1e-9 {
			break
		}
		x = 1 / frac
	}
	if k1 == 0 {
		return Rational{}
	}
	if negative {
		h1 = -h1
	}
	return Rational{Num: h1, Den: k1}
}
