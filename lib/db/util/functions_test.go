package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashIsSeeded(t *testing.T) {
	data := []byte("skipstore")
	assert.Equal(t, HashBytes(data, 1), HashBytes(data, 1))
	assert.NotEqual(t, HashBytes(data, 1), HashBytes(data, 2))
	assert.Equal(t, HashBytes(data, 7), HashString("skipstore", 7))
}

func TestDigits(t *testing.T) {
	const hash = uint32(0xA1B2C3D4)
	assert.Equal(t, 0xA1, Digit(hash, 0))
	assert.Equal(t, 0xB2, Digit(hash, 1))
	assert.Equal(t, 0xC3, Digit(hash, 2))
	assert.Equal(t, 0xD4, Digit(hash, 3))

	assert.Equal(t, uint32(0xA1), ShardID(hash, 1))
	assert.Equal(t, uint32(0xA1B2), ShardID(hash, 2))
	assert.Equal(t, uint32(0xA1B2C3), ShardID(hash, 3))
	assert.Equal(t, hash, ShardID(hash, 4))

	for n := 1; n <= MaxDigits; n++ {
		for i := 0; i < n; i++ {
			assert.Equal(t, Digit(hash, i), ShardDigit(ShardID(hash, n), n, i), "n=%d i=%d", n, i)
		}
	}
}

func TestHashSpreadsOverShards(t *testing.T) {
	seed := GenerateSeed()
	counts := make([]float64, 256)
	for i := 0; i < 256*100; i++ {
		counts[ShardID(HashString(string(rune(i))+"key", seed), 1)]++
	}
	stats := NewDistributionStats(counts)
	assert.Equal(t, 256, stats.Shards)
	assert.Greater(t, stats.DistributionQuality, 0.5)
}

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 2.0, s.StdDeviation)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)

	assert.Equal(t, Stats{}, NewStats(nil))
}
