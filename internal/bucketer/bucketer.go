// Package bucketer implements the deterministic hashing and bucketing
// used for traffic allocation and variation assignment. Buckets are
// derived from MurmurHash3 (x86 32-bit) with a fixed seed so that a
// given user always lands in the same bucket for a given seed string.
package bucketer

import (
	"math"

	"github.com/spaolacci/murmur3"
)

const (
	hashSeed = 1

	// MaxTrafficPercent is the bucket space used for campaign traffic
	// gating (percent granularity).
	MaxTrafficPercent = 100

	// MaxTrafficValue is the bucket space used for variation
	// assignment (basis-point granularity).
	MaxTrafficValue = 10000
)

// HashValue computes the 32-bit murmur hash of key with the fixed seed.
func HashValue(key string) uint32 {
	return murmur3.Sum32WithSeed([]byte(key), hashSeed)
}

// BucketValue maps a hash into [1, max*multiplier] by scaling the hash
// ratio over the full 32-bit space.
func BucketValue(hash uint32, max, multiplier int) int {
	ratio := float64(hash) / math.Pow(2, 32)
	return int(math.Floor((float64(max)*ratio + 1) * float64(multiplier)))
}

// BucketValueForUser returns the user's bucket in [1, max] for the given
// seed string.
func BucketValueForUser(seed string, max int) int {
	return BucketValue(HashValue(seed), max, 1)
}

// VariationBucket returns the bucket used for variation assignment,
// always over the MaxTrafficValue space.
func VariationBucket(seed string) int {
	return BucketValueForUser(seed, MaxTrafficValue)
}
