package variation

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// seedStride is the additive step between seeds of one batch. It is odd,
// so i*seedStride is distinct for every i below 2^64 and the seeds of a
// batch never collide.
const seedStride uint64 = 0x9E3779B97F4A7C15

// EntropySource returns a random 64-bit draw that is mixed into the batch
// base seed.
type EntropySource func() (uint64, error)

// CryptoEntropy reads 8 bytes from crypto/rand.
func CryptoEntropy() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// DeriveSeeds returns count seeds for a batch started at now.
//
// The base combines the wall clock with a random draw, so two batches
// started in the same millisecond still differ. If entropy is nil or fails,
// the clock's nanoseconds stand in for the draw.
//
// Example:
//
//	seeds := DeriveSeeds(time.Now(), 5, CryptoEntropy)
//	// len(seeds) == 5, all pairwise distinct
func DeriveSeeds(now time.Time, count int, entropy EntropySource) []int64 {
	if count <= 0 {
		return nil
	}

	var draw uint64
	if entropy != nil {
		if v, err := entropy(); err == nil {
			draw = v
		} else {
			draw = uint64(now.UnixNano())
		}
	} else {
		draw = uint64(now.UnixNano())
	}

	base := uint64(now.UnixMilli())*1000 + draw%1000000 + uint64(now.UnixNano()%1000000)
	base = splitmix64(base ^ draw)

	seeds := make([]int64, count)
	for i := range seeds {
		seeds[i] = int64(base + uint64(i)*seedStride)
	}
	return seeds
}
