package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
)

// filter wraps a bits-and-blooms BloomFilter. Add is serialized; host
// indexes only read a filter after it has been fully built.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

var _ rulelist.BloomFilter = (*filter)(nil)
