package gomux

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// NoPTS marks an unknown timestamp. It is also returned when a rescale overflows.
const NoPTS int64 = math.MinInt64

// Rational is a time base or any other exact fraction.
type Rational struct {
	Num int
	Den int
}

// NewRational returns num/den.
func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

func (q Rational) String() string {
	return strconv.Itoa(q.Num) + "/" + strconv.Itoa(q.Den)
}

// Valid reports whether q can be used as a time base.
func (q Rational) Valid() bool {
	return q.Num > 0 && q.Den > 0
}

func (q Rational) Float64() float64 {
	if q.Den == 0 {
		return math.NaN()
	}
	return float64(q.Num) / float64(q.Den)
}

// Rounding selects how RescaleRnd rounds inexact results.
type Rounding int

const (
	RoundZero    Rounding = 0 // toward zero
	RoundInf     Rounding = 1 // away from zero
	RoundDown    Rounding = 2 // toward -infinity
	RoundUp      Rounding = 3 // toward +infinity
	RoundNearInf Rounding = 5 // to nearest, halves away from zero

	// RoundPassMinMax is OR-ed with a mode to leave math.MinInt64 and
	// math.MaxInt64 unchanged, so NoPTS survives a rescale.
	RoundPassMinMax Rounding = 8192
)

func (rnd Rounding) valid() bool {
	mode := rnd &^ RoundPassMinMax
	return mode >= RoundZero && mode <= RoundNearInf && mode != 4
}

// RescaleRnd computes a*b/c with a 128-bit intermediate and the given rounding.
// It returns NoPTS for invalid arguments and when the result does not fit in 64 bits.
func RescaleRnd(a, b, c int64, rnd Rounding) int64 {
	if c <= 0 || b < 0 || !rnd.valid() {
		return NoPTS
	}

	if rnd&RoundPassMinMax != 0 {
		if a == math.MinInt64 || a == math.MaxInt64 {
			return a
		}
		rnd &^= RoundPassMinMax
	}

	if a < 0 {
		// negate, swapping Down and Up; MinInt64 wraps to itself on overflow
		return -RescaleRnd(-max(a, -math.MaxInt64), b, c, rnd^((rnd>>1)&1))
	}

	var r uint64
	switch {
	case rnd == RoundNearInf:
		r = uint64(c / 2)
	case rnd&1 != 0:
		r = uint64(c - 1)
	}

	hi, lo := bits.Mul64(uint64(a), uint64(b))
	var carry uint64
	lo, carry = bits.Add64(lo, r, 0)
	hi += carry

	if hi >= uint64(c) {
		return NoPTS
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return NoPTS
	}
	return int64(q)
}

// Rescale computes a*b/c rounding to nearest.
func Rescale(a, b, c int64) int64 {
	return RescaleRnd(a, b, c, RoundNearInf)
}

// RescaleQRnd converts a from time base bq to time base cq.
func RescaleQRnd(a int64, bq, cq Rational, rnd Rounding) int64 {
	b := int64(bq.Num) * int64(cq.Den)
	c := int64(cq.Num) * int64(bq.Den)
	return RescaleRnd(a, b, c, rnd)
}

// RescaleQ converts a from time base bq to time base cq rounding to nearest.
func RescaleQ(a int64, bq, cq Rational) int64 {
	return RescaleQRnd(a, bq, cq, RoundNearInf)
}

// TimestampString formats a timestamp, printing NOPTS for the sentinel.
func TimestampString(ts int64) string {
	if ts == NoPTS {
		return "NOPTS"
	}
	return strconv.FormatInt(ts, 10)
}

// TimeString formats a timestamp as seconds in time base tb.
func TimeString(ts int64, tb Rational) string {
	if ts == NoPTS {
		return "NOPTS"
	}
	return fmt.Sprintf("%.6g", float64(ts)*tb.Float64())
}
