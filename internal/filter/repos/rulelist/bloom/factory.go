package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
)

// factory implements rulelist.BloomFactory using a BloomSizer.
type factory struct {
	sizer rulelist.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() rulelist.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for the given capacity and target
// false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) rulelist.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
