// Package coordinator keeps working copies in the canvas store consistent
// with the versions API. It autosaves dirty copies after a quiet period,
// runs explicit validations and loads or reverts versions.
//
// Every request for a version id carries a sequence number. A response is
// applied only if no newer response for the same id has been applied and no
// load or revert happened since the request started.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"strategy-builder-go/internal/canvas"
	"strategy-builder-go/internal/metrics"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/session"
	"strategy-builder-go/internal/versions"
)

var (
	// ErrNoStrategy is returned when a version has no owning strategy in the
	// store or the strategy id is empty.
	ErrNoStrategy = errors.New("no strategy for version")
	// ErrNoVersions is returned by Bootstrap when a saved strategy has no versions.
	ErrNoVersions = errors.New("strategy has no saved versions")
)

// Options tunes timing and callbacks. Zero durations take the defaults.
type Options struct {
	Debounce       time.Duration
	NoticeDuration time.Duration
	StaleTime      time.Duration
	// OnVersionSwitch is called after a load or revert made another version active.
	OnVersionSwitch func(models.StrategyVersionSummary)
}

const (
	DefaultDebounce       = 1500 * time.Millisecond
	DefaultNoticeDuration = 4000 * time.Millisecond
	DefaultStaleTime      = 60 * time.Second
)

type cacheEntry struct {
	versions  []models.StrategyVersionSummary
	fetchedAt time.Time
}

// Coordinator drives autosave, validation, load and revert for a Store.
type Coordinator struct {
	store  *canvas.Store
	api    versions.API
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	timers   map[string]*time.Timer
	timerGen map[string]uint64
	saving   map[string]bool
	resave   map[string]bool
	issued   map[string]uint64
	applied  map[string]uint64
	cache    map[string]cacheEntry

	notice      string
	noticeGen   uint64
	noticeTimer *time.Timer
	reverting   string

	unsubscribe func()
}

// New creates a coordinator and subscribes it to store changes. Call Close
// to stop pending timers.
func New(store *canvas.Store, api versions.API, logger *zap.Logger, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = DefaultNoticeDuration
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:    store,
		api:      api,
		logger:   logger.Named("coordinator"),
		opts:     opts,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[string]*time.Timer),
		timerGen: make(map[string]uint64),
		saving:   make(map[string]bool),
		resave:   make(map[string]bool),
		issued:   make(map[string]uint64),
		applied:  make(map[string]uint64),
		cache:    make(map[string]cacheEntry),
	}
	c.unsubscribe = store.Subscribe(c.onChange)
	return c
}

// Close cancels pending autosaves and in-flight autosave requests and waits
// for them to return.
func (c *Coordinator) Close() {
	c.unsubscribe()

	c.mu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// onChange must not call store mutations while holding c.mu: the store runs
// listeners synchronously.
func (c *Coordinator) onChange(ch canvas.Change) {
	switch ch.Kind {
	case canvas.ChangeGraph:
		c.schedule(ch.VersionID)
	case canvas.ChangeDirty:
		if ch.Dirty {
			c.schedule(ch.VersionID)
		}
	case canvas.ChangeLoaded:
		c.stopTimer(ch.VersionID)
	case canvas.ChangeReset:
		c.stopAll()
	}
	metrics.SetDirtyVersions(c.dirtyCount())
}

func (c *Coordinator) dirtyCount() int {
	n := 0
	for _, id := range c.store.VersionIDs() {
		if c.store.Dirty(id) {
			n++
		}
	}
	return n
}

// schedule (re)starts the quiet-period timer for versionID.
func (c *Coordinator) schedule(versionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if t, ok := c.timers[versionID]; ok {
		t.Stop()
	}
	c.timerGen[versionID]++
	gen := c.timerGen[versionID]
	c.timers[versionID] = time.AfterFunc(c.opts.Debounce, func() { c.autosave(versionID, gen) })
}

func (c *Coordinator) stopTimer(versionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[versionID]; ok {
		t.Stop()
		delete(c.timers, versionID)
	}
}

func (c *Coordinator) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// begin issues the next sequence number for versionID.
func (c *Coordinator) begin(versionID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[versionID]++
	return c.issued[versionID]
}

// accept reports whether a response for seq may still be applied and, if so,
// records it as the newest applied response.
func (c *Coordinator) accept(versionID string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptLocked(versionID, seq)
}

func (c *Coordinator) acceptLocked(versionID string, seq uint64) bool {
	if seq < c.applied[versionID] {
		return false
	}
	c.applied[versionID] = seq
	return true
}

// invalidate makes every in-flight request for versionID stale.
func (c *Coordinator) invalidate(versionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[versionID]++
	c.applied[versionID] = c.issued[versionID]
}

// Saving reports whether an autosave for versionID is in flight.
func (c *Coordinator) Saving(versionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving[versionID]
}

// autosave runs when the quiet period for versionID elapses. At most one
// autosave per version is in flight; a timer firing meanwhile asks for
// another pass once the current one finishes. gen identifies the timer that
// fired; a newer timer registered meanwhile keeps its entry.
func (c *Coordinator) autosave(versionID string, gen uint64) {
	c.mu.Lock()
	if c.timerGen[versionID] == gen {
		delete(c.timers, versionID)
	}
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.saving[versionID] {
		c.resave[versionID] = true
		c.mu.Unlock()
		return
	}
	c.saving[versionID] = true
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	view, ok := c.store.View(versionID)
	log := c.logger.With(zap.String("strategy_id", view.StrategyID), zap.String("version_id", versionID))
	if !ok || !view.Dirty || !models.IsPersistableID(view.StrategyID) {
		if ok && view.Dirty {
			log.Debug("Skipping autosave of local draft")
		}
		c.mu.Lock()
		c.saving[versionID] = false
		delete(c.resave, versionID)
		c.mu.Unlock()
		return
	}

	seq := c.begin(versionID)
	saved, err := c.api.CreateVersion(c.ctx, view.StrategyID, versions.CreateVersionRequest{
		Graph:            view.Graph,
		EducatorCallouts: []models.EducatorCallout{},
	})

	c.mu.Lock()
	c.saving[versionID] = false
	resave := c.resave[versionID]
	delete(c.resave, versionID)
	fresh := c.acceptLocked(versionID, seq)
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if err != nil {
		metrics.IncAutosave("error")
		log.Warn("Autosave failed", zap.Error(err))
		if fresh {
			c.store.SetValidationError(versionID, err.Error())
		} else {
			metrics.IncStaleResponse("autosave")
		}
		c.rescheduleIfDirty(versionID, resave)
		return
	}

	// The version exists on the server even when a newer response owns the
	// issues. MarkSavedAt refuses if the copy changed or was reloaded.
	c.remember(view.StrategyID, *saved)
	if fresh {
		c.store.SetValidationResult(versionID, saved.ValidationIssues)
	} else {
		metrics.IncStaleResponse("autosave")
		log.Debug("Keeping newer validation issues over autosave response", zap.Uint64("seq", seq))
	}
	cleared := c.store.MarkSavedAt(versionID, view.Revision)
	metrics.IncAutosave("success")
	log.Info("Autosaved version",
		zap.String("saved_id", saved.ID),
		zap.Int("version", saved.Version),
		zap.String("label", saved.Label),
		zap.Int("issues", len(saved.ValidationIssues)))

	c.rescheduleIfDirty(versionID, resave || !cleared)
}

func (c *Coordinator) rescheduleIfDirty(versionID string, want bool) {
	if want && c.store.Dirty(versionID) {
		c.schedule(versionID)
	}
}

// Validate runs the validation endpoint on a clone of the current graph
// right away. Network failures are recorded in the store and not returned;
// a missing session is recorded and returned.
func (c *Coordinator) Validate(ctx context.Context, versionID string) error {
	strategyID := c.store.StrategyOf(versionID)
	if strategyID == "" {
		return fmt.Errorf("%w: %s", ErrNoStrategy, versionID)
	}
	graph, _ := c.store.Graph(versionID)
	log := c.logger.With(zap.String("strategy_id", strategyID), zap.String("version_id", versionID))

	seq := c.begin(versionID)
	c.store.MarkValidationPending(versionID)
	issues, err := c.api.ValidateGraph(ctx, strategyID, graph)

	if !c.accept(versionID, seq) {
		metrics.IncStaleResponse("validate")
		log.Debug("Discarding stale validation response", zap.Uint64("seq", seq))
		return nil
	}
	if err != nil {
		metrics.IncValidation("error")
		log.Warn("Validation failed", zap.Error(err))
		c.store.SetValidationError(versionID, err.Error())
		if errors.Is(err, session.ErrMissingSession) {
			return err
		}
		return nil
	}

	c.store.SetValidationResult(versionID, issues)
	metrics.IncValidation("success")
	log.Info("Validated graph", zap.Int("issues", len(issues)))
	return nil
}
