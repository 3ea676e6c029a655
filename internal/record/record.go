// Package record converts PUT, GET, LOCK and UNLOCK arguments into record
// numbers.
//
// GW-BASIC evaluates record numbers in single precision, so values above
// 2^24 lose their low bits before they are range checked. Round reproduces
// that loss exactly.
package record

import (
	"math"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

const (
	// MaxPosition is the highest record number PUT and GET accept:
	// position-1 must fit in a single-precision mantissa.
	MaxPosition = 1 << 25
	// MaxLock is the highest record number LOCK and UNLOCK accept.
	MaxLock = 1<<25 - 2
)

// At returns a pointer to x, for passing an explicit optional argument.
func At(x float64) *float64 {
	return &x
}

// Round converts x to IEEE-754 single precision and then rounds it to the
// nearest integer, halves away from zero. Round is idempotent.
func Round(x float64) float64 {
	return math.Round(float64(float32(x)))
}

// inRange reports whether lo <= v <= hi; NaN is never in range.
func inRange(v float64, lo, hi int64) bool {
	return v >= float64(lo) && v <= float64(hi)
}

// Position resolves an explicit PUT/GET argument. For seekable handles the
// result is a record number; stream handles use it as a byte count.
func Position(x float64) (int64, error) {
	v := Round(x)
	if !inRange(v, 1, MaxPosition) {
		return 0, ioerr.New(ioerr.BadRecordNumber)
	}
	return int64(v), nil
}

// LockBounds resolves optional LOCK/UNLOCK bounds. A missing start means
// record 1; a missing stop means the start record.
func LockBounds(start, stop *float64) (int64, int64, error) {
	lo := 1.0
	if start != nil {
		lo = Round(*start)
	}
	hi := lo
	if stop != nil {
		hi = Round(*stop)
	}
	if !inRange(lo, 1, MaxLock) || !inRange(hi, 1, MaxLock) {
		return 0, 0, ioerr.New(ioerr.BadRecordNumber)
	}
	return int64(lo), int64(hi), nil
}
