// Package deck allocates the secret numbers dealt at the start of a game.
package deck

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
)

// ErrCapacity is returned when a range holds fewer numbers than requested.
var ErrCapacity = errors.New("deck: range too small for requested cards")

// Capacity returns how many distinct numbers fit in the inclusive range.
func Capacity(min, max int) int {
	if max < min {
		return 0
	}
	return max - min + 1
}

// Allocate draws count distinct numbers uniformly without replacement from
// the inclusive range [min, max].
//
// It runs a partial Fisher-Yates shuffle over a virtual array, so only the
// positions that are actually swapped are materialised. A range of a million
// numbers costs the same as a range of ten when dealing a handful of cards.
func Allocate(rng *rand.Rand, min, max, count int) ([]int, error) {
	if rng == nil {
		return nil, errors.New("deck: rng is required")
	}
	if count < 0 {
		return nil, fmt.Errorf("deck: invalid card count %d", count)
	}
	size := Capacity(min, max)
	if size < count {
		return nil, fmt.Errorf("%w: need %d, %d-%d holds %d", ErrCapacity, count, min, max, size)
	}

	swapped := make(map[int]int, count)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return min + i
	}

	numbers := make([]int, count)
	for i := 0; i < count; i++ {
		j := i + rng.IntN(size-i)
		numbers[i] = at(j)
		swapped[j] = at(i)
	}
	return numbers, nil
}

// Deal partitions numbers into hands of perHand contiguous entries.
func Deal(numbers []int, hands, perHand int) ([][]int, error) {
	if hands < 0 || perHand < 1 {
		return nil, fmt.Errorf("deck: invalid deal of %d hands x %d cards", hands, perHand)
	}
	if len(numbers) != hands*perHand {
		return nil, fmt.Errorf("deck: have %d numbers for %d hands x %d cards", len(numbers), hands, perHand)
	}

	out := make([][]int, hands)
	for i := range out {
		chunk := make([]int, perHand)
		copy(chunk, numbers[i*perHand:(i+1)*perHand])
		out[i] = chunk
	}
	return out, nil
}
