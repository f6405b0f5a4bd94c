// Package notify carries user-facing problem reports about profiles (bad list
// references, exhausted downloads, missing files) to whatever surface the host
// provides. Delivery is fire-and-forget.
package notify

import (
	"errors"
	"sync"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/domain"
)

// Notification describes one problem with one profile.
type Notification struct {
	Slot  int
	Label string // debug label, e.g. "inProfile0"
	Ref   string // raw list reference as configured
	Err   error
}

// Kind returns a short name for the sentinel error n wraps.
func (n Notification) Kind() string {
	switch {
	case errors.Is(n.Err, domain.ErrInvalidListReference):
		return "invalid_list_reference"
	case errors.Is(n.Err, domain.ErrFetchExhausted):
		return "fetch_exhausted"
	case errors.Is(n.Err, domain.ErrFileNotFound):
		return "file_not_found"
	default:
		return "error"
	}
}

// Sink receives notifications. Implementations must not block.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

// LogSink writes notifications as warnings through a logger.
type LogSink struct {
	Logger logpkg.Logger
}

// NewLogSink returns a Sink that logs through l.
func NewLogSink(l logpkg.Logger) *LogSink {
	return &LogSink{Logger: l}
}

func (s *LogSink) Notify(n Notification) {
	fields := map[string]any{
		"profile": n.Label,
		"slot":    n.Slot,
		"kind":    n.Kind(),
		"ref":     n.Ref,
	}
	if n.Err != nil {
		fields["error"] = n.Err
	}
	s.Logger.Warn(fields, "profile_notification")
}

// Recorder is a Sink that keeps every notification in memory.
type Recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

// Count returns how many recorded notifications wrap target.
func (r *Recorder) Count(target error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.got {
		if errors.Is(x.Err, target) {
			n++
		}
	}
	return n
}

var (
	_ Sink = SinkFunc(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = (*Recorder)(nil)
)
