package canvas

import (
	"sort"

	"strategy-builder-go/internal/history"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/validation"
)

// View is a read-only copy of one working copy.
type View struct {
	StrategyID string               `json:"strategyId"`
	VersionID  string               `json:"versionId"`
	Graph      models.StrategyGraph `json:"graph"`
	Validation validation.State     `json:"validation"`
	Dirty      bool                 `json:"dirty"`
	CanUndo    bool                 `json:"canUndo"`
	CanRedo    bool                 `json:"canRedo"`
	Revision   uint64               `json:"revision"`
}

// Graph returns a clone of the working copy and whether it exists.
func (s *Store) Graph(versionID string) (models.StrategyGraph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[versionID]
	if !ok {
		return models.EmptyGraph(), false
	}
	return g.Clone(), true
}

// Validation returns the validation state. Unknown ids are idle with no issues.
func (s *Store) Validation(versionID string) validation.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validationOf(versionID)
}

func (s *Store) validationOf(versionID string) validation.State {
	if st, ok := s.validation[versionID]; ok {
		return st
	}
	return validation.Initial(nil)
}

// Dirty reports whether the working copy has unsaved edits.
func (s *Store) Dirty(versionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty[versionID]
}

// Revision counts graph replacements for the version. It changes on every
// mutation, undo, redo and load.
func (s *Store) Revision(versionID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision[versionID]
}

// CanUndo reports whether Undo would change the graph.
func (s *Store) CanUndo(versionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[versionID].CanUndo()
}

// CanRedo reports whether Redo would change the graph.
func (s *Store) CanRedo(versionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[versionID].CanRedo()
}

// History returns a copy of the undo/redo stack.
func (s *Store) History(versionID string) history.Stack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[versionID].Clone()
}

// ActiveStrategyID returns the strategy of the last loaded version.
func (s *Store) ActiveStrategyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeStrategyID
}

// ActiveVersionID returns the active version id, or "".
func (s *Store) ActiveVersionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeVersionID
}

// StrategyOf returns the strategy a version was loaded for.
func (s *Store) StrategyOf(versionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategies[versionID]
}

// VersionIDs lists the loaded versions in sorted order.
func (s *Store) VersionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.graphs))
	for id := range s.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// View returns everything the UI needs to render one version.
func (s *Store) View(versionID string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[versionID]
	if !ok {
		g = models.EmptyGraph()
	}
	return View{
		StrategyID: s.strategies[versionID],
		VersionID:  versionID,
		Graph:      g.Clone(),
		Validation: s.validationOf(versionID),
		Dirty:      s.dirty[versionID],
		CanUndo:    s.history[versionID].CanUndo(),
		CanRedo:    s.history[versionID].CanRedo(),
		Revision:   s.revision[versionID],
	}, ok
}
