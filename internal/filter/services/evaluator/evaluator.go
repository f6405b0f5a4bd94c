// Package evaluator decides what happens to an intercepted request by walking
// every profile's rule lists in two phases: whitelists first, then blacklists.
package evaluator

import (
	"time"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/common/metrics"
	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
)

type Evaluator struct {
	source  SnapshotSource
	cache   rulelist.DecisionCache
	metrics *metrics.Metrics
	logger  logpkg.Logger
}

type EvaluatorOptions struct {
	Source  SnapshotSource
	Cache   rulelist.DecisionCache // optional
	Metrics *metrics.Metrics       // optional
	Logger  logpkg.Logger
}

func NewEvaluator(opts EvaluatorOptions) *Evaluator {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	return &Evaluator{
		source:  opts.Source,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// EvaluateBlock runs the block lists of every profile against ev.
func (e *Evaluator) EvaluateBlock(ev domain.RequestEvent) domain.Decision {
	return e.evaluate(domain.ListBlock, ev)
}

// EvaluateRedirect runs the redirect lists of every profile against ev.
func (e *Evaluator) EvaluateRedirect(ev domain.RequestEvent) domain.Decision {
	return e.evaluate(domain.ListRedirect, ev)
}

func (e *Evaluator) evaluate(kind domain.ListKind, ev domain.RequestEvent) domain.Decision {
	start := time.Now()
	defer func() { e.metrics.ObserveEval(time.Since(start).Seconds()) }()

	u, err := ev.ParsedURL()
	if err != nil {
		e.logger.Debug(map[string]any{"url": ev.URL, "error": err}, "evaluate_bad_url")
		e.metrics.Decision(kind.String(), domain.ActionPass.String())
		return domain.PassDecision()
	}

	// One snapshot per evaluation: a concurrent reload never produces a
	// decision mixing old and new lists.
	snap := e.source.Snapshot()
	key := rulelist.CacheKey{Generation: snap.Generation, Kind: kind, Type: ev.Type, URL: ev.URL}
	if e.cache != nil {
		if d, ok := e.cache.Get(key); ok {
			e.metrics.CacheLookup(true)
			e.metrics.Decision(kind.String(), d.Action.String())
			return d
		}
		e.metrics.CacheLookup(false)
	}

	d := walk(snap, kind, u, ev.Type)
	if e.cache != nil {
		e.cache.Put(key, d)
	}
	e.metrics.Decision(kind.String(), d.Action.String())
	if d.Slot >= 0 {
		e.logger.Debug(map[string]any{
			"url":    ev.URL,
			"type":   ev.Type.String(),
			"list":   kind.String(),
			"action": d.Action.String(),
			"slot":   d.Slot,
			"rule":   d.Rule,
		}, "request_matched")
	}
	return d
}
