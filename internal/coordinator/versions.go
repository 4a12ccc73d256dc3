package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"strategy-builder-go/internal/canvas"
	"strategy-builder-go/internal/metrics"
	"strategy-builder-go/internal/models"
)

// ListVersions returns the saved versions of a strategy, newest first. Results
// are cached for the stale time. Strategy ids that are not UUIDs are local
// drafts and have no saved versions.
func (c *Coordinator) ListVersions(ctx context.Context, strategyID string) ([]models.StrategyVersionSummary, error) {
	if !models.IsPersistableID(strategyID) {
		return []models.StrategyVersionSummary{}, nil
	}

	c.mu.Lock()
	entry, ok := c.cache[strategyID]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.opts.StaleTime {
		return cloneSummaries(entry.versions), nil
	}

	list, err := c.api.ListVersions(ctx, strategyID)
	if err != nil {
		c.logger.Warn("Failed to list versions", zap.String("strategy_id", strategyID), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	c.cache[strategyID] = cacheEntry{versions: cloneSummaries(list), fetchedAt: c.now()}
	c.mu.Unlock()
	return list, nil
}

// InvalidateVersions drops the cached list so the next ListVersions fetches.
func (c *Coordinator) InvalidateVersions(strategyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, strategyID)
}

// remember puts a freshly created version at the head of the cached list,
// replacing an entry with the same id. If the list was never fetched it is
// seeded with v alone.
func (c *Coordinator) remember(strategyID string, v models.StrategyVersionSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[strategyID]
	if !ok {
		c.cache[strategyID] = cacheEntry{
			versions:  []models.StrategyVersionSummary{cloneSummary(v)},
			fetchedAt: c.now(),
		}
		return
	}
	next := make([]models.StrategyVersionSummary, 0, len(entry.versions)+1)
	next = append(next, cloneSummary(v))
	for _, existing := range entry.versions {
		if existing.ID != v.ID {
			next = append(next, existing)
		}
	}
	entry.versions = next
	c.cache[strategyID] = entry
}

// Load makes summary the active working copy, discarding any local state
// for its id, and reports the switch.
func (c *Coordinator) Load(strategyID string, summary models.StrategyVersionSummary) {
	c.invalidate(summary.ID)
	c.store.LoadVersion(canvas.LoadParams{
		StrategyID: strategyID,
		VersionID:  summary.ID,
		Graph:      summary.Graph,
		Issues:     summary.ValidationIssues,
	})
	c.logger.Info("Loaded version",
		zap.String("strategy_id", strategyID),
		zap.String("version_id", summary.ID),
		zap.Int("version", summary.Version))
	if c.opts.OnVersionSwitch != nil {
		c.opts.OnVersionSwitch(summary)
	}
}

// Revert asks the server to copy versionID into a new head version of
// strategyID and loads it. A notice is shown for the notice duration.
func (c *Coordinator) Revert(ctx context.Context, strategyID, versionID string) (models.StrategyVersionSummary, error) {
	if strategyID == "" {
		return models.StrategyVersionSummary{}, fmt.Errorf("%w: %s", ErrNoStrategy, versionID)
	}
	log := c.logger.With(zap.String("strategy_id", strategyID), zap.String("target_id", versionID))

	c.mu.Lock()
	c.reverting = versionID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.reverting == versionID {
			c.reverting = ""
		}
		c.mu.Unlock()
	}()

	created, err := c.api.RevertVersion(ctx, strategyID, versionID)
	if err != nil {
		metrics.IncRevert("error")
		log.Warn("Revert failed", zap.Error(err))
		return models.StrategyVersionSummary{}, err
	}

	c.remember(strategyID, *created)
	c.Load(strategyID, *created)
	c.showNotice(fmt.Sprintf("Restored version %s", created.Label))
	metrics.IncRevert("success")
	log.Info("Reverted version", zap.String("version_id", created.ID), zap.String("label", created.Label))
	return *created, nil
}

// RevertingID returns the target of the revert in flight, or "".
func (c *Coordinator) RevertingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reverting
}

// Notice returns the transient confirmation message, if one is showing.
func (c *Coordinator) Notice() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice, c.notice != ""
}

func (c *Coordinator) showNotice(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
	}
	c.noticeGen++
	gen := c.noticeGen
	c.notice = message
	c.noticeTimer = time.AfterFunc(c.opts.NoticeDuration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.noticeGen == gen {
			c.notice = ""
		}
	})
}

// Bootstrap loads the initial working copy for strategyID: a local draft for
// ids that are not UUIDs, the newest saved version otherwise.
func (c *Coordinator) Bootstrap(ctx context.Context, strategyID string) (models.StrategyVersionSummary, error) {
	if strategyID == "" {
		return models.StrategyVersionSummary{}, ErrNoStrategy
	}

	if !models.IsPersistableID(strategyID) {
		draft := models.StrategyVersionSummary{
			ID:               strategyID + "-draft",
			Version:          1,
			Label:            "Draft",
			Graph:            models.EmptyGraph(),
			ValidationIssues: []models.CanvasValidationIssue{},
			CreatedAt:        c.now().UTC(),
		}
		c.Load(strategyID, draft)
		return draft, nil
	}

	list, err := c.ListVersions(ctx, strategyID)
	if err != nil {
		return models.StrategyVersionSummary{}, fmt.Errorf("failed to load strategy canvas: %w", err)
	}
	if len(list) == 0 {
		return models.StrategyVersionSummary{}, fmt.Errorf("%w: %s", ErrNoVersions, strategyID)
	}
	c.Load(strategyID, list[0])
	return list[0], nil
}

func cloneSummary(v models.StrategyVersionSummary) models.StrategyVersionSummary {
	v.Graph = v.Graph.Clone()
	v.ValidationIssues = models.CloneIssues(v.ValidationIssues)
	return v
}

func cloneSummaries(list []models.StrategyVersionSummary) []models.StrategyVersionSummary {
	out := make([]models.StrategyVersionSummary, len(list))
	for i, v := range list {
		out[i] = cloneSummary(v)
	}
	return out
}
