package order

import (
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderNumberPattern = regexp.MustCompile(`^DJ-[0-9A-Z]+-[0-9A-Z]{4}$`)

func TestNumberGenerator_Format(t *testing.T) {
	gen := DefaultNumberGenerator()
	for range 100 {
		n := gen()
		require.Regexp(t, orderNumberPattern, n)
	}
}

func TestNumberGenerator_Deterministic(t *testing.T) {
	now := func() time.Time { return time.UnixMilli(1700000000000) }
	gen := NewNumberGenerator(now, func(n int) int { return n - 1 })

	// 1700000000000 in base 36 is "LOYW3V28".
	assert.Equal(t, "DJ-LOYW3V28-ZZZZ", gen())
}

func TestNumberGenerator_SortsByTime(t *testing.T) {
	var clock int64 = 1700000000000
	now := func() time.Time { return time.UnixMilli(clock) }
	gen := NewNumberGenerator(now, func(int) int { return 0 })

	var numbers []string
	for range 5 {
		numbers = append(numbers, gen())
		clock += 1234
	}

	assert.True(t, sort.StringsAreSorted(numbers), "numbers %v", numbers)
}
