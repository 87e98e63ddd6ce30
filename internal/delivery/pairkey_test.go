package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_Symmetric(t *testing.T) {
	cases := [][2]uint64{
		{1, 2},
		{2, 1},
		{100, 100000},
		{7, 7},
		{1, 1<<30 - 1},
	}
	for _, c := range cases {
		assert.Equal(t, PairKey(c[0], c[1]), PairKey(c[1], c[0]),
			"pair(%d,%d)应与pair(%d,%d)相等", c[0], c[1], c[1], c[0])
	}
}

func TestPairKey_DistinctPairsDoNotCollide(t *testing.T) {
	seen := make(map[uint64][2]uint64)
	for a := uint64(1); a <= 50; a++ {
		for b := a + 1; b <= 50; b++ {
			key := PairKey(a, b)
			if prev, ok := seen[key]; ok {
				t.Fatalf("pair(%d,%d)与pair(%d,%d)键冲突", a, b, prev[0], prev[1])
			}
			seen[key] = [2]uint64{a, b}
		}
	}
}

func TestPairKey_Composition(t *testing.T) {
	// min*2^30 + max
	assert.Equal(t, uint64(3)<<30|uint64(9), PairKey(9, 3))
}
