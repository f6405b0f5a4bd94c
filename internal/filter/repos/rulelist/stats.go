package rulelist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// ListStats counts the rules of one profile's RuleList.
type ListStats struct {
	BlockWhite    int `json:"block_whitelist"`
	BlockBlack    int `json:"block_blacklist"`
	RedirectWhite int `json:"redirect_whitelist"`
	RedirectBlack int `json:"redirect_blacklist"`
}

// Total is the number of rules across all four sub-lists.
func (s ListStats) Total() int {
	return s.BlockWhite + s.BlockBlack + s.RedirectWhite + s.RedirectBlack
}

// StoreStats reports the state of the published snapshot.
type StoreStats struct {
	Generation uint64      // generation of the current snapshot
	Lists      []ListStats // per slot
}
