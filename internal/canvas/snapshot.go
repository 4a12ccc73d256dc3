package canvas

import "strategy-builder-go/internal/models"

// CopySnapshot is the persistable part of one working copy.
type CopySnapshot struct {
	VersionID  string
	StrategyID string
	Graph      models.StrategyGraph
	Issues     []models.CanvasValidationIssue
	Dirty      bool
}

// Snapshot is the persistable part of the store. History is not included.
type Snapshot struct {
	ActiveStrategyID string
	ActiveVersionID  string
	Copies           []CopySnapshot
}

// Snapshot copies the store's working copies in version id order.
func (s *Store) Snapshot() Snapshot {
	ids := s.VersionIDs()

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ActiveStrategyID: s.activeStrategyID,
		ActiveVersionID:  s.activeVersionID,
		Copies:           make([]CopySnapshot, 0, len(ids)),
	}
	for _, id := range ids {
		g, ok := s.graphs[id]
		if !ok {
			continue
		}
		snap.Copies = append(snap.Copies, CopySnapshot{
			VersionID:  id,
			StrategyID: s.strategies[id],
			Graph:      g.Clone(),
			Issues:     models.CloneIssues(s.validationOf(id).Issues()),
			Dirty:      s.dirty[id],
		})
	}
	return snap
}

// Restore resets the store and loads every copy in snap, keeping their
// dirty flags. Restored copies start with empty history.
func (s *Store) Restore(snap Snapshot) {
	s.Reset()
	for _, c := range snap.Copies {
		s.LoadVersion(LoadParams{
			StrategyID: c.StrategyID,
			VersionID:  c.VersionID,
			Graph:      c.Graph,
			Issues:     c.Issues,
		})
		if c.Dirty {
			s.MarkDirty(c.VersionID)
		}
	}
	s.commit(func() []Change {
		s.activeStrategyID = snap.ActiveStrategyID
		s.activeVersionID = snap.ActiveVersionID
		return []Change{s.change(snap.ActiveVersionID, ChangeActive)}
	})
}
