package order

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefix    = "DJ"
	numberSuffixLen = 4
	base36Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NumberGenerator produces human-readable order numbers. Implementations must
// be safe for concurrent use.
type NumberGenerator func() string

// NewNumberGenerator returns a generator producing DJ-<time>-<random>, where
// <time> is the upper-case base-36 Unix millisecond timestamp, so numbers sort
// roughly by creation time. intN must return a value in [0, n).
func NewNumberGenerator(now func() time.Time, intN func(n int) int) NumberGenerator {
	return func() string {
		ts := strings.ToUpper(strconv.FormatInt(now().UnixMilli(), 36))

		var suffix [numberSuffixLen]byte
		for i := range suffix {
			suffix[i] = base36Alphabet[intN(len(base36Alphabet))]
		}
		return numberPrefix + "-" + ts + "-" + string(suffix[:])
	}
}

// DefaultNumberGenerator uses the wall clock and the global random source.
func DefaultNumberGenerator() NumberGenerator {
	return NewNumberGenerator(time.Now, rand.IntN)
}
