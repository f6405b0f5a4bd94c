// Package sources resolves each profile's list reference to a file, keeps
// remote lists fresh, and feeds parsed lists to the rule store.
package sources

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/haukened/simplefilter/internal/filter/common/clock"
	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/common/metrics"
	"github.com/haukened/simplefilter/internal/filter/common/notify"
	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist/parsers"
)

// Defaults applied to zero option values.
const (
	DefaultStaleness       = 4 * 24 * time.Hour
	DefaultMaxRetries      = 3
	DefaultAttemptTimeout  = 30 * time.Second
	DefaultRefreshInterval = time.Hour
)

// ManagerOptions wires a Manager. Store, FS and Downloader are required.
type ManagerOptions struct {
	Slots      int
	CacheDir   string            // where remote lists are cached
	Folders    map[string]string // alias -> directory
	Staleness  time.Duration
	MaxRetries int // retries after the first attempt; zero means DefaultMaxRetries
	Timeout    time.Duration
	Backoff    time.Duration // linear: attempt n waits n*Backoff

	Store      RuleStore
	FS         FileSystem
	Downloader Downloader
	State      StateStore  // optional
	Watcher    FileWatcher // optional
	Notifier   notify.Sink
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Logger     logpkg.Logger
}

// Manager owns the profile slots and their reload workers.
//
// Reloads of one slot never overlap: a trigger that arrives while the slot is
// reloading marks it pending, and the running worker runs once more with the
// latest reference when it finishes. Different slots reload in parallel.
type Manager struct {
	entries []*entry

	cacheDir   string
	folders    map[string]string
	staleness  time.Duration
	maxRetries int
	timeout    time.Duration
	backoff    time.Duration

	store    RuleStore
	fs       FileSystem
	dl       Downloader
	state    StateStore
	watcher  FileWatcher
	notifier notify.Sink
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   logpkg.Logger
}

// NewManager returns a Manager with every slot Unconfigured.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		cacheDir:   opts.CacheDir,
		folders:    opts.Folders,
		staleness:  opts.Staleness,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		backoff:    opts.Backoff,
		store:      opts.Store,
		fs:         opts.FS,
		dl:         opts.Downloader,
		state:      opts.State,
		watcher:    opts.Watcher,
		notifier:   opts.Notifier,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if m.staleness <= 0 {
		m.staleness = DefaultStaleness
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxRetries
	}
	if m.timeout <= 0 {
		m.timeout = DefaultAttemptTimeout
	}
	if m.clock == nil {
		m.clock = clock.RealClock{}
	}
	if m.logger == nil {
		m.logger = logpkg.NewNoopLogger()
	}
	if m.notifier == nil {
		m.notifier = notify.NewLogSink(m.logger)
	}
	m.entries = make([]*entry, opts.Slots)
	for i := range m.entries {
		m.entries[i] = newEntry(i)
	}
	return m
}

// Slots returns the number of profile slots.
func (m *Manager) Slots() int { return len(m.entries) }

// Profiles returns a copy of every slot's state.
func (m *Manager) Profiles() []Profile {
	out := make([]Profile, len(m.entries))
	for i, e := range m.entries {
		e.mu.Lock()
		out[i] = e.snapshot()
		url := e.res.URL
		e.mu.Unlock()
		if url != "" && m.state != nil {
			if st, ok, err := m.state.Get(url); err == nil && ok {
				out[i].Fetch = &st
			}
		}
	}
	return out
}

// Profile returns a copy of one slot's state.
func (m *Manager) Profile(slot int) (Profile, bool) {
	e, err := m.entry(slot)
	if err != nil {
		return Profile{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), true
}

// SetReference stores a new raw reference for slot and triggers a reload.
// The returned channel is closed once a reload that saw ref has finished.
func (m *Manager) SetReference(ctx context.Context, slot int, ref string) (<-chan struct{}, error) {
	e, err := m.entry(slot)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.ref = ref
	if e.state != domain.StateFetching {
		e.state = domain.StateUnresolved
	}
	e.mu.Unlock()
	return m.trigger(ctx, e), nil
}

// Reload re-reads slot with its current reference.
func (m *Manager) Reload(ctx context.Context, slot int) (<-chan struct{}, error) {
	e, err := m.entry(slot)
	if err != nil {
		return nil, err
	}
	return m.trigger(ctx, e), nil
}

func (m *Manager) entry(slot int) (*entry, error) {
	if slot < 0 || slot >= len(m.entries) {
		return nil, fmt.Errorf("slot %d out of range [0,%d)", slot, len(m.entries))
	}
	return m.entries[slot], nil
}

// trigger starts a worker for e, or marks e pending when one is running.
func (m *Manager) trigger(ctx context.Context, e *entry) <-chan struct{} {
	e.mu.Lock()
	if e.running {
		e.pending = true
		if e.nextDone == nil {
			e.nextDone = make(chan struct{})
		}
		ch := e.nextDone
		e.mu.Unlock()
		return ch
	}
	e.running = true
	done := make(chan struct{})
	e.mu.Unlock()

	go m.worker(ctx, e, done)
	return done
}

func (m *Manager) worker(ctx context.Context, e *entry, done chan struct{}) {
	for {
		m.reload(ctx, e)

		e.mu.Lock()
		if !e.pending {
			e.running = false
			e.mu.Unlock()
			close(done)
			return
		}
		e.pending = false
		next := e.nextDone
		e.nextDone = nil
		e.mu.Unlock()

		close(done)
		done = next
	}
}

// reload resolves the current reference of e and loads its list.
func (m *Manager) reload(ctx context.Context, e *entry) {
	e.mu.Lock()
	ref := e.ref
	e.state = domain.StateResolving
	e.mu.Unlock()

	res, err := Predict(ref, m.cacheDir, m.folders)
	prev := m.setResolution(e, res)
	m.watch(e, res)
	if prev.URL != "" && prev.URL != res.URL {
		m.forget(prev.URL)
	}

	switch {
	case err != nil:
		m.fail(e, ref, err)
		m.clear(e)
		return
	case res.Kind == domain.ReferenceNone:
		m.clear(e)
		m.setState(e, domain.StateUnconfigured, nil)
		m.metrics.Reload(e.slot, metrics.ResultCleared)
		return
	}

	m.logger.Debug(map[string]any{
		"profile": e.label,
		"ref":     ref,
		"kind":    res.Kind.String(),
		"path":    res.Path,
	}, "profile_resolved")

	if res.Kind == domain.ReferenceRemote {
		m.analyze(ctx, e, ref, res)
		return
	}
	if err := m.scan(e, res.Path); err != nil {
		m.fail(e, ref, err)
	}
}

// analyze decides between the cached copy of a remote list and a download.
func (m *Manager) analyze(ctx context.Context, e *entry, ref string, res Resolution) {
	info, err := m.fs.Stat(res.Path)
	switch {
	case err == nil && !m.isStale(info.ModTime):
		if err := m.scan(e, res.Path); err != nil {
			m.fail(e, ref, err)
		}
		return
	case err != nil && !errors.Is(err, domain.ErrFileNotFound):
		m.logger.Warn(map[string]any{"profile": e.label, "path": res.Path, "error": err}, "cache_stat_failed")
	}
	m.fetch(ctx, e, ref, res, err == nil)
}

// Refresh reloads every remote profile whose cached copy is missing or past
// the staleness window and returns the completion channels of the reloads it
// started. Profiles that are already reloading are skipped.
func (m *Manager) Refresh(ctx context.Context) []<-chan struct{} {
	var started []<-chan struct{}
	for _, e := range m.entries {
		e.mu.Lock()
		res, busy := e.res, e.running
		e.mu.Unlock()
		if busy || res.Kind != domain.ReferenceRemote {
			continue
		}
		if info, err := m.fs.Stat(res.Path); err == nil && !m.isStale(info.ModTime) {
			continue
		}
		m.logger.Debug(map[string]any{"profile": e.label, "url": res.URL}, "profile_refresh_due")
		started = append(started, m.trigger(ctx, e))
	}
	return started
}

// Run calls Refresh every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// isStale reports whether a cache file modified at mod is past the window.
func (m *Manager) isStale(mod time.Time) bool {
	return mod.Add(m.staleness).Before(m.clock.Now())
}

// fetch downloads a remote list with up to maxRetries retries. After the last
// failed attempt it notifies ErrFetchExhausted once and falls back to the
// existing cache file, when there is one.
func (m *Manager) fetch(ctx context.Context, e *entry, ref string, res Resolution, haveCache bool) {
	m.setState(e, domain.StateFetching, nil)

	prev := domain.FetchState{URL: res.URL}
	if m.state != nil {
		if st, ok, err := m.state.Get(res.URL); err != nil {
			m.logger.Warn(map[string]any{"url": res.URL, "error": err}, "fetch_state_read_failed")
		} else if ok {
			prev = st
		}
	}
	validators := prev
	if !haveCache {
		// Without a cache file a 304 would leave nothing to read.
		validators.ETag, validators.LastModified = "", ""
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 && !m.sleep(ctx, time.Duration(attempt)*m.backoff) {
			m.setState(e, domain.StateUnresolved, ctx.Err())
			return
		}

		actx, cancel := context.WithTimeout(ctx, m.timeout)
		dres, err := m.dl.Download(actx, res.URL, res.Path, validators)
		cancel()

		if err == nil {
			m.fetched(e, ref, res, prev, dres)
			return
		}
		lastErr = err
		m.metrics.FetchAttempt(e.slot, metrics.ResultFailed)
		m.logger.Warn(map[string]any{
			"profile": e.label,
			"url":     res.URL,
			"attempt": attempt + 1,
			"error":   err,
		}, "fetch_attempt_failed")

		if ctx.Err() != nil {
			m.setState(e, domain.StateUnresolved, ctx.Err())
			return
		}
		if err := m.fs.MkdirAll(filepath.Dir(res.Path)); err != nil {
			m.logger.Error(map[string]any{"dir": filepath.Dir(res.Path), "error": err}, "cache_dir_create_failed")
		}
	}

	prev.Failures++
	prev.LastFailure = m.clock.Now()
	m.putState(prev)
	m.metrics.FetchAttempt(e.slot, metrics.ResultExhausted)

	exhausted := fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrFetchExhausted, res.URL, m.maxRetries+1, lastErr)
	m.fail(e, ref, exhausted)

	if haveCache {
		if err := m.scan(e, res.Path); err == nil {
			m.setState(e, domain.StateFailed, exhausted)
			m.metrics.Reload(e.slot, metrics.ResultStale)
		}
		return
	}
	m.clear(e)
}

// fetched records a successful download and parses the cache file.
func (m *Manager) fetched(e *entry, ref string, res Resolution, prev domain.FetchState, dres domain.DownloadResult) {
	now := m.clock.Now()
	result := metrics.ResultOK
	if dres.NotModified {
		result = metrics.ResultNotModified
		if err := m.fs.Touch(res.Path, now); err != nil {
			m.logger.Warn(map[string]any{"path": res.Path, "error": err}, "cache_touch_failed")
		}
	}
	m.metrics.FetchAttempt(e.slot, result)

	st := domain.FetchState{
		URL:          res.URL,
		ETag:         dres.ETag,
		LastModified: dres.LastModified,
		LastSuccess:  now,
		LastFailure:  prev.LastFailure,
		Size:         dres.Size,
	}
	if dres.NotModified {
		st.Size = prev.Size
	}
	m.putState(st)

	m.logger.Info(map[string]any{
		"profile":      e.label,
		"url":          res.URL,
		"not_modified": dres.NotModified,
		"bytes":        dres.Size,
	}, "fetch_succeeded")

	if err := m.scan(e, res.Path); err != nil {
		m.fail(e, ref, err)
	}
}

// scan reads, decodes and loads the list file of e. A missing file clears
// the slot.
func (m *Manager) scan(e *entry, path string) error {
	data, err := m.fs.ReadFile(path)
	if err != nil {
		m.clear(e)
		m.metrics.Reload(e.slot, metrics.ResultMissing)
		if errors.Is(err, domain.ErrFileNotFound) {
			return err
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	text, encoding := parsers.Decode(data)
	lines := parsers.SplitLines(text)
	res, err := m.store.Load(e.slot, lines, e.label)
	if err != nil {
		m.metrics.Reload(e.slot, metrics.ResultFailed)
		return err
	}

	e.mu.Lock()
	e.rules = res.Rules
	e.loadedAt = m.clock.Now()
	e.state = domain.StateFresh
	e.lastErr = nil
	e.mu.Unlock()

	m.metrics.Reload(e.slot, metrics.ResultOK)
	m.recordRules(e.slot, res.Rules.BlockWhite, res.Rules.BlockBlack, res.Rules.RedirectWhite, res.Rules.RedirectBlack)
	m.logger.Debug(map[string]any{
		"profile":  e.label,
		"path":     path,
		"encoding": encoding,
		"lines":    res.Lines,
		"rules":    res.Rules.Total(),
		"rejected": res.Rejected,
	}, "profile_scanned")
	return nil
}

func (m *Manager) recordRules(slot, bw, bb, rw, rb int) {
	m.metrics.SetRules(slot, domain.ListBlock.String(), domain.Whitelist.String(), bw)
	m.metrics.SetRules(slot, domain.ListBlock.String(), domain.Blacklist.String(), bb)
	m.metrics.SetRules(slot, domain.ListRedirect.String(), domain.Whitelist.String(), rw)
	m.metrics.SetRules(slot, domain.ListRedirect.String(), domain.Blacklist.String(), rb)
}

// fail marks e Failed and notifies the user.
func (m *Manager) fail(e *entry, ref string, err error) {
	m.setState(e, domain.StateFailed, err)
	m.notifier.Notify(notify.Notification{Slot: e.slot, Label: e.label, Ref: ref, Err: err})
}

// clear publishes an empty list for e.
func (m *Manager) clear(e *entry) {
	if err := m.store.Clear(e.slot); err != nil {
		m.logger.Error(map[string]any{"profile": e.label, "error": err}, "profile_clear_failed")
	}
	e.mu.Lock()
	e.rules = rulelist.ListStats{}
	e.mu.Unlock()
	m.recordRules(e.slot, 0, 0, 0, 0)
}

func (m *Manager) setState(e *entry, s domain.ProfileState, err error) {
	e.mu.Lock()
	e.state = s
	e.lastErr = err
	e.mu.Unlock()
}

// setResolution stores res and returns the resolution it replaced.
func (m *Manager) setResolution(e *entry, res Resolution) Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.res
	e.res = res
	return prev
}

// forget drops the fetch state of url unless another slot still uses it.
func (m *Manager) forget(url string) {
	if m.state == nil {
		return
	}
	for _, e := range m.entries {
		e.mu.Lock()
		inUse := e.res.URL == url
		e.mu.Unlock()
		if inUse {
			return
		}
	}
	if err := m.state.Delete(url); err != nil {
		m.logger.Warn(map[string]any{"url": url, "error": err}, "fetch_state_delete_failed")
	}
}

// watch tracks editable files and stops tracking everything else.
func (m *Manager) watch(e *entry, res Resolution) {
	if m.watcher == nil {
		return
	}
	path := ""
	if res.Kind == domain.ReferenceLocal || res.Kind == domain.ReferenceAlias {
		path = res.Path
	}
	if err := m.watcher.Set(e.slot, path); err != nil {
		m.logger.Warn(map[string]any{"profile": e.label, "path": path, "error": err}, "profile_watch_failed")
	}
}

func (m *Manager) putState(st domain.FetchState) {
	if m.state == nil {
		return
	}
	if err := m.state.Put(st); err != nil {
		m.logger.Warn(map[string]any{"url": st.URL, "error": err}, "fetch_state_write_failed")
	}
}

// sleep waits d, returning false when ctx ends first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
