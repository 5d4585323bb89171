package deck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/ito/internal/randutil"
)

func TestAllocateUniqueWithinRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		min, max int
		count    int
	}{
		{"single card", 1, 100, 1},
		{"typical game", 1, 100, 12},
		{"exact fit", 1, 10, 10},
		{"negative range", -20, -5, 16},
		{"wide range", 1, 1_000_000, 50},
		{"nothing", 1, 10, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rng := randutil.New(42)

			for round := 0; round < 50; round++ {
				numbers, err := Allocate(rng, tc.min, tc.max, tc.count)
				require.NoError(t, err)
				require.Len(t, numbers, tc.count)

				seen := make(map[int]bool, len(numbers))
				for _, n := range numbers {
					assert.GreaterOrEqual(t, n, tc.min)
					assert.LessOrEqual(t, n, tc.max)
					assert.False(t, seen[n], "duplicate number %d", n)
					seen[n] = true
				}
			}
		})
	}
}

func TestAllocateCapacity(t *testing.T) {
	t.Parallel()
	rng := randutil.New(1)

	_, err := Allocate(rng, 1, 10, 11)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacity))

	_, err = Allocate(rng, 10, 1, 1)
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = Allocate(rng, 1, 10, -1)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrCapacity))

	_, err = Allocate(nil, 1, 10, 1)
	assert.Error(t, err)
}

func TestAllocateExactFitIsPermutation(t *testing.T) {
	t.Parallel()

	numbers, err := Allocate(randutil.New(7), 5, 14, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, numbers)
}

func TestAllocateDeterministicForSeed(t *testing.T) {
	t.Parallel()

	a, err := Allocate(randutil.New(99), 1, 100, 8)
	require.NoError(t, err)
	b, err := Allocate(randutil.New(99), 1, 100, 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAllocateCoversRange(t *testing.T) {
	t.Parallel()
	rng := randutil.New(2024)

	counts := make(map[int]int)
	for i := 0; i < 2000; i++ {
		numbers, err := Allocate(rng, 1, 10, 3)
		require.NoError(t, err)
		for _, n := range numbers {
			counts[n]++
		}
	}

	// 6000 draws over 10 values: every value is expected ~600 times.
	require.Len(t, counts, 10)
	for n, c := range counts {
		assert.Greater(t, c, 450, "value %d drawn too rarely", n)
		assert.Less(t, c, 750, "value %d drawn too often", n)
	}
}

func TestDeal(t *testing.T) {
	t.Parallel()

	hands, err := Deal([]int{3, 9, 4, 1, 8, 2}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{3, 9}, {4, 1}, {8, 2}}, hands)

	_, err = Deal([]int{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	_, err = Deal(nil, 2, 0)
	assert.Error(t, err)

	empty, err := Deal(nil, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCapacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 100, Capacity(1, 100))
	assert.Equal(t, 1, Capacity(5, 5))
	assert.Equal(t, 0, Capacity(6, 5))
}
