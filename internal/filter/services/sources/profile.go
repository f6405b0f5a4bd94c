package sources

import (
	"fmt"
	"sync"
	"time"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
)

// Profile is a point-in-time copy of one profile slot.
type Profile struct {
	Slot     int                `json:"slot"`
	Key      string             `json:"key"`
	Label    string             `json:"label"`
	Ref      string             `json:"ref"`
	Kind     string             `json:"kind"`
	Path     string             `json:"path,omitempty"`
	NoEdit   bool               `json:"no_edit"`
	State    string             `json:"state"`
	Error    string             `json:"error,omitempty"`
	LoadedAt time.Time          `json:"loaded_at,omitzero"`
	Rules    rulelist.ListStats `json:"rules"`
	Fetch    *domain.FetchState `json:"fetch,omitempty"`
}

// KeyForSlot returns the configuration key of a slot, e.g. "filter_list_0".
func KeyForSlot(slot int) string { return fmt.Sprintf("filter_list_%d", slot) }

// LabelForSlot returns the debug label of a slot, e.g. "inProfile0".
func LabelForSlot(slot int) string { return fmt.Sprintf("inProfile%d", slot) }

// entry is the mutable state of one slot. mu guards every field.
type entry struct {
	mu sync.Mutex

	slot  int
	key   string
	label string

	ref      string
	res      Resolution
	state    domain.ProfileState
	lastErr  error
	loadedAt time.Time
	rules    rulelist.ListStats

	// reload serialization
	running  bool
	pending  bool
	nextDone chan struct{}
}

func newEntry(slot int) *entry {
	return &entry{
		slot:  slot,
		key:   KeyForSlot(slot),
		label: LabelForSlot(slot),
		state: domain.StateUnconfigured,
	}
}

func (e *entry) snapshot() Profile {
	p := Profile{
		Slot:     e.slot,
		Key:      e.key,
		Label:    e.label,
		Ref:      e.ref,
		Kind:     e.res.Kind.String(),
		Path:     e.res.Path,
		NoEdit:   e.res.NoEdit,
		State:    e.state.String(),
		LoadedAt: e.loadedAt,
		Rules:    e.rules,
	}
	if e.lastErr != nil {
		p.Error = e.lastErr.Error()
	}
	return p
}
