// Package engine is the entry point the interception host and the
// configuration layer talk to. It maps configuration keys to profile slots and
// routes request events to the evaluator.
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/services/sources"
)

// Phase is the interception point a request is evaluated at.
type Phase uint8

const (
	// PhaseRequest runs the block lists, before the request is sent.
	PhaseRequest Phase = iota
	// PhaseHeaders runs the redirect lists, before headers are sent.
	PhaseHeaders
)

func (p Phase) String() string {
	switch p {
	case PhaseRequest:
		return "request"
	case PhaseHeaders:
		return "headers"
	default:
		return fmt.Sprintf("Phase(%d)", p)
	}
}

type Engine struct {
	sources   SourceManager
	evaluator Evaluator
	logger    logpkg.Logger

	// slots is built once; configuration keys never change at runtime.
	slots map[string]int
}

type EngineOptions struct {
	Sources   SourceManager
	Evaluator Evaluator
	Logger    logpkg.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	e := &Engine{
		sources:   opts.Sources,
		evaluator: opts.Evaluator,
		logger:    opts.Logger,
		slots:     make(map[string]int, opts.Sources.Slots()),
	}
	for i := 0; i < opts.Sources.Slots(); i++ {
		e.slots[sources.KeyForSlot(i)] = i
	}
	return e
}

// Start sets the initial reference of every slot from refs (keyed like
// "filter_list_0") and waits until every slot has finished its first load.
// Slots load in parallel. Load problems are reported through notifications,
// so the only error is ctx ending first.
func (e *Engine) Start(ctx context.Context, refs map[string]string) error {
	for key := range refs {
		if _, ok := e.slots[key]; !ok {
			e.logger.Warn(map[string]any{"key": key}, "unknown_list_key")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, slot := range e.slots {
		ref := refs[key]
		g.Go(func() error {
			done, err := e.sources.SetReference(ctx, slot, ref)
			if err != nil {
				return err
			}
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	e.logger.Info(map[string]any{"profiles": len(e.slots)}, "engine_started")
	return nil
}

// OnConfigChanged applies one changed configuration key. Keys that do not
// name a profile list are ignored and yield a nil channel. The returned
// channel is closed once the new reference has been loaded.
func (e *Engine) OnConfigChanged(ctx context.Context, key, value string) <-chan struct{} {
	slot, ok := e.slots[key]
	if !ok {
		e.logger.Debug(map[string]any{"key": key}, "config_key_ignored")
		return nil
	}
	e.logger.Info(map[string]any{"key": key, "ref": value}, "list_reference_changed")
	done, err := e.sources.SetReference(ctx, slot, value)
	if err != nil {
		e.logger.Error(map[string]any{"key": key, "error": err}, "list_reference_rejected")
		return nil
	}
	return done
}

// OnFileChanged re-reads the list of slot after its file was edited.
func (e *Engine) OnFileChanged(ctx context.Context, slot int) <-chan struct{} {
	done, err := e.sources.Reload(ctx, slot)
	if err != nil {
		e.logger.Error(map[string]any{"slot": slot, "error": err}, "list_reload_rejected")
		return nil
	}
	e.logger.Debug(map[string]any{"slot": slot}, "list_file_changed")
	return done
}

// Decide evaluates ev at phase.
func (e *Engine) Decide(ev domain.RequestEvent, phase Phase) domain.Decision {
	if phase == PhaseHeaders {
		return e.evaluator.EvaluateRedirect(ev)
	}
	return e.evaluator.EvaluateBlock(ev)
}

// BeforeRequest answers the host's pre-request hook: {cancel:true} or nothing.
func (e *Engine) BeforeRequest(ev domain.RequestEvent) domain.HostResponse {
	return e.Decide(ev, PhaseRequest).HostResponse()
}

// BeforeSendHeaders answers the host's pre-headers hook: {redirectUrl} or nothing.
func (e *Engine) BeforeSendHeaders(ev domain.RequestEvent) domain.HostResponse {
	return e.Decide(ev, PhaseHeaders).HostResponse()
}

// Profiles reports the state of every profile slot.
func (e *Engine) Profiles() []sources.Profile {
	return e.sources.Profiles()
}
