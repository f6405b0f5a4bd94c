package rulelist

import (
	"fmt"
	"sync"
	"sync/atomic"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist/parsers"
)

// Snapshot is an immutable view of every profile's RuleList. Readers load
// the current snapshot once and evaluate against it without locking.
type Snapshot struct {
	Generation uint64
	Lists      []*RuleList // indexed by profile slot
}

// List returns the RuleList for slot, or nil when slot is out of range.
func (s *Snapshot) List(slot int) *RuleList {
	if s == nil || slot < 0 || slot >= len(s.Lists) {
		return nil
	}
	return s.Lists[slot]
}

// LoadResult summarizes one Load.
type LoadResult struct {
	Slot       int
	Generation uint64
	Lines      int
	Ignored    int
	Rejected   int
	Rules      ListStats
}

// Options configures a Store.
type Options struct {
	Slots   int
	Sigils  parsers.Sigils
	Factory BloomFactory  // nil disables the Bloom prefilter
	FPRate  float64       // Bloom target false-positive rate
	Cache   DecisionCache // purged on every publish; may be nil
	Logger  logpkg.Logger
}

// Store owns the RuleList of every profile slot and publishes them as
// snapshots. Writers are serialized; a new RuleList is built before the
// writer lock is taken and swapped in with a single pointer store.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	sigils  parsers.Sigils
	factory BloomFactory
	fpRate  float64
	cache   DecisionCache
	logger  logpkg.Logger
}

// NewStore returns a Store whose slots all hold empty lists.
func NewStore(opts Options) *Store {
	if opts.Sigils == nil {
		opts.Sigils = parsers.DefaultSigils()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	s := &Store{
		sigils:  opts.Sigils,
		factory: opts.Factory,
		fpRate:  opts.FPRate,
		cache:   opts.Cache,
		logger:  opts.Logger,
	}
	lists := make([]*RuleList, opts.Slots)
	for i := range lists {
		lists[i] = EmptyRuleList()
	}
	s.current.Store(&Snapshot{Lists: lists})
	return s
}

// Snapshot returns the currently published snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Slots returns the number of profile slots.
func (s *Store) Slots() int {
	return len(s.current.Load().Lists)
}

// Load replaces the RuleList of slot with one compiled from lines. Lines
// without a known sigil are ignored and lines that fail to compile are
// skipped. The previous rules of the slot are discarded entirely, so loading
// the same lines twice yields the same rules.
func (s *Store) Load(slot int, lines []parsers.Line, source string) (LoadResult, error) {
	if err := s.checkSlot(slot); err != nil {
		return LoadResult{}, err
	}

	parsed := parsers.ParseLines(lines, s.sigils, source, s.logger)
	list := NewRuleList(parsed.Rules, s.factory, s.fpRate)

	gen := s.publish(slot, list)
	res := LoadResult{
		Slot:       slot,
		Generation: gen,
		Lines:      parsed.Lines,
		Ignored:    parsed.Ignored,
		Rejected:   parsed.Rejected,
		Rules:      list.Stats(),
	}
	s.logger.Info(map[string]any{
		"slot":       slot,
		"source":     source,
		"generation": gen,
		"rules":      res.Rules.Total(),
		"rejected":   res.Rejected,
	}, "rule_list_loaded")
	return res, nil
}

// Clear publishes an empty RuleList for slot.
func (s *Store) Clear(slot int) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	gen := s.publish(slot, EmptyRuleList())
	s.logger.Debug(map[string]any{"slot": slot, "generation": gen}, "rule_list_cleared")
	return nil
}

// Stats reports rule counts of the current snapshot.
func (s *Store) Stats() StoreStats {
	snap := s.current.Load()
	out := StoreStats{Generation: snap.Generation, Lists: make([]ListStats, len(snap.Lists))}
	for i, l := range snap.Lists {
		out.Lists[i] = l.Stats()
	}
	return out
}

// publish copies the current slot table, replaces one entry and swaps the
// snapshot in. The decision cache is purged after the swap.
func (s *Store) publish(slot int, list *RuleList) uint64 {
	s.mu.Lock()
	old := s.current.Load()
	lists := make([]*RuleList, len(old.Lists))
	copy(lists, old.Lists)
	lists[slot] = list
	next := &Snapshot{Generation: old.Generation + 1, Lists: lists}
	s.current.Store(next)
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Purge()
	}
	return next.Generation
}

func (s *Store) checkSlot(slot int) error {
	if n := s.Slots(); slot < 0 || slot >= n {
		return fmt.Errorf("slot %d out of range [0,%d)", slot, n)
	}
	return nil
}
