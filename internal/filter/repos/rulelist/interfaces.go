package rulelist

import "github.com/haukened/simplefilter/internal/filter/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the host index needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a capacity and false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// CacheKey identifies one cached evaluation. Generation ties the entry to the
// snapshot it was computed from, so a publish makes older entries unreachable.
type CacheKey struct {
	Generation uint64
	Kind       domain.ListKind
	Type       domain.ResourceType
	URL        string
}

// DecisionCache caches evaluator decisions with basic metrics.
type DecisionCache interface {
	Get(key CacheKey) (domain.Decision, bool)
	Put(key CacheKey, d domain.Decision)
	Len() int
	Purge()
	Stats() CacheStats
}
