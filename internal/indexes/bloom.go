package indexes

import (
	"hash/fnv"
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/vmihailenco/msgpack/v5"
)

// Bloom is a membership filter over every memory id ever written, used by
// retrieval stage L1 as a fast negative check before any real index lookup
// runs. False positives are fine; false negatives are not.
type Bloom struct {
	mu   sync.RWMutex
	bits *bitset.BitSet
	k    uint
	m    uint
	n    uint
}

// NewBloom sizes the filter for expectedN items at the given target false
// positive rate (the spec's default is 1%).
func NewBloom(expectedN uint, falsePositiveRate float64) *Bloom {
	if expectedN == 0 {
		expectedN = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	m := optimalM(expectedN, falsePositiveRate)
	k := optimalK(m, expectedN)
	return &Bloom{bits: bitset.New(m), m: m, k: k}
}

func optimalM(n uint, p float64) uint {
	m := -1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	return uint(math.Ceil(m))
}

func optimalK(m, n uint) uint {
	k := float64(m) / float64(n) * math.Ln2
	if k < 1 {
		return 1
	}
	return uint(math.Round(k))
}

func (b *Bloom) hashes(id string) []uint {
	h1 := fnv.New64a()
	_, _ = h1.Write([]byte(id))
	sum1 := h1.Sum64()

	h2 := fnv.New64()
	_, _ = h2.Write([]byte(id))
	sum2 := h2.Sum64()

	out := make([]uint, b.k)
	for i := uint(0); i < b.k; i++ {
		combined := sum1 + uint64(i)*sum2
		out[i] = uint(combined % uint64(b.m))
	}
	return out
}

// Add records a memory id's presence.
func (b *Bloom) Add(memoryID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.hashes(memoryID) {
		b.bits.Set(h)
	}
	b.n++
}

// MightContain reports whether memoryID may have been added. A false
// result is a definite negative; a true result requires confirmation by a
// real index.
func (b *Bloom) MightContain(memoryID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.hashes(memoryID) {
		if !b.bits.Test(h) {
			return false
		}
	}
	return true
}

// Remove is a best-effort no-op: standard Bloom filters cannot remove
// members without a counting variant, which the spec does not require.
func (b *Bloom) Remove(memoryID string) error { return nil }

type bloomSnapshot struct {
	Bits []uint64
	M    uint
	K    uint
	N    uint
}

// Snapshot serializes the filter state.
func (b *Bloom) Snapshot() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return msgpack.Marshal(bloomSnapshot{Bits: b.bits.Bytes(), M: b.m, K: b.k, N: b.n})
}

// Load restores the filter state from a Snapshot.
func (b *Bloom) Load(data []byte) error {
	var snap bloomSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits = bitset.From(snap.Bits)
	b.m = snap.M
	b.k = snap.K
	b.n = snap.N
	return nil
}
