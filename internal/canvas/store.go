// Package canvas holds the live editing state of strategy graphs.
//
// A Store owns one working copy per version id together with its undo
// history, validation state and dirty flag. Every graph mutation goes through
// UpdateGraph. Store methods never fail: unknown version ids behave as an
// empty graph or as a no-op.
package canvas

import (
	"sort"
	"sync"

	"strategy-builder-go/internal/history"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/validation"
)

// ChangeKind says what part of a working copy changed.
type ChangeKind string

const (
	ChangeLoaded     ChangeKind = "loaded"
	ChangeGraph      ChangeKind = "graph"
	ChangeDirty      ChangeKind = "dirty"
	ChangeValidation ChangeKind = "validation"
	ChangeActive     ChangeKind = "active"
	ChangeReset      ChangeKind = "reset"
)

// Change is delivered to subscribers after a store update is applied.
type Change struct {
	VersionID string     `json:"versionId"`
	Kind      ChangeKind `json:"kind"`
	Dirty     bool       `json:"dirty"`
	Revision  uint64     `json:"revision"`
}

// Listener receives changes. It runs on the goroutine that made the change
// and may read from the store.
type Listener func(Change)

// LoadParams describes a version to load into the store.
type LoadParams struct {
	StrategyID string
	VersionID  string
	Graph      models.StrategyGraph
	Issues     []models.CanvasValidationIssue
}

// Store is the single source of truth for working copies. It is safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex

	activeStrategyID string
	activeVersionID  string

	graphs     map[string]models.StrategyGraph
	history    map[string]*history.Stack
	validation map[string]validation.State
	dirty      map[string]bool
	revision   map[string]uint64
	strategies map[string]string

	listeners    map[int]Listener
	nextListener int
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{listeners: make(map[int]Listener)}
	s.clear()
	return s
}

func (s *Store) clear() {
	s.activeStrategyID = ""
	s.activeVersionID = ""
	s.graphs = make(map[string]models.StrategyGraph)
	s.history = make(map[string]*history.Stack)
	s.validation = make(map[string]validation.State)
	s.dirty = make(map[string]bool)
	s.revision = make(map[string]uint64)
	s.strategies = make(map[string]string)
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// commit runs fn under the write lock and then notifies listeners of the
// changes fn returned.
func (s *Store) commit(fn func() []Change) {
	s.mu.Lock()
	changes := fn()
	listeners := make([]Listener, 0, len(s.listeners))
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

func (s *Store) change(versionID string, kind ChangeKind) Change {
	return Change{VersionID: versionID, Kind: kind, Dirty: s.dirty[versionID], Revision: s.revision[versionID]}
}

func (s *Store) stack(versionID string) *history.Stack {
	st, ok := s.history[versionID]
	if !ok {
		st = &history.Stack{}
		s.history[versionID] = st
	}
	return st
}

func (s *Store) current(versionID string) models.StrategyGraph {
	if g, ok := s.graphs[versionID]; ok {
		return g
	}
	return models.EmptyGraph()
}

// LoadVersion replaces the working copy for p.VersionID with a clone of
// p.Graph, empties its history, resets validation to idle with p.Issues and
// clears the dirty flag. It also makes the version active. Loading the same
// id again overwrites everything; that is how load and revert work.
func (s *Store) LoadVersion(p LoadParams) {
	s.commit(func() []Change {
		s.activeStrategyID = p.StrategyID
		s.activeVersionID = p.VersionID
		s.graphs[p.VersionID] = p.Graph.Clone()
		s.history[p.VersionID] = &history.Stack{}
		s.validation[p.VersionID] = validation.Initial(p.Issues)
		s.dirty[p.VersionID] = false
		s.revision[p.VersionID]++
		s.strategies[p.VersionID] = p.StrategyID
		return []Change{s.change(p.VersionID, ChangeLoaded)}
	})
}

// SetActiveVersion switches the active version and makes sure it has a
// history entry. An empty id clears the active version.
func (s *Store) SetActiveVersion(versionID string) {
	s.commit(func() []Change {
		s.activeVersionID = versionID
		s.stack(versionID)
		return []Change{s.change(versionID, ChangeActive)}
	})
}

// UpdateGraph applies mutate to a clone of the current graph (an empty graph
// if there is none), stores the result, pushes the pre-mutation graph onto
// the history and marks the version dirty. mutate may change its argument
// freely.
func (s *Store) UpdateGraph(versionID string, mutate func(g *models.StrategyGraph)) {
	s.apply(versionID, func(g *models.StrategyGraph) bool {
		mutate(g)
		return true
	})
}

// apply is UpdateGraph for mutations that may decline. When mutate returns
// false nothing is stored and no history entry is pushed.
func (s *Store) apply(versionID string, mutate func(g *models.StrategyGraph) bool) bool {
	applied := false
	s.commit(func() []Change {
		current := s.current(versionID)
		next := current.Clone()
		if !mutate(&next) {
			return nil
		}
		if next.Nodes == nil {
			next.Nodes = []models.StrategyNode{}
		}
		if next.Edges == nil {
			next.Edges = []models.StrategyEdge{}
		}
		s.graphs[versionID] = next
		s.stack(versionID).Push(current.Clone())
		s.dirty[versionID] = true
		s.revision[versionID]++
		applied = true
		return []Change{s.change(versionID, ChangeGraph)}
	})
	return applied
}

// Undo restores the previous snapshot. It does nothing when there is none.
func (s *Store) Undo(versionID string) {
	s.step(versionID, (*history.Stack).Undo)
}

// Redo reapplies the last undone snapshot. It does nothing when there is none.
func (s *Store) Redo(versionID string) {
	s.step(versionID, (*history.Stack).Redo)
}

func (s *Store) step(versionID string, move func(*history.Stack, models.StrategyGraph) (models.StrategyGraph, bool)) {
	s.commit(func() []Change {
		st, ok := s.history[versionID]
		if !ok {
			return nil
		}
		next, moved := move(st, s.current(versionID))
		if !moved {
			return nil
		}
		s.graphs[versionID] = next
		s.dirty[versionID] = true
		s.revision[versionID]++
		return []Change{s.change(versionID, ChangeGraph)}
	})
}

// MarkDirty flags the version as having unsaved edits.
func (s *Store) MarkDirty(versionID string) {
	s.setDirty(versionID, true)
}

// MarkSaved clears the dirty flag.
func (s *Store) MarkSaved(versionID string) {
	s.setDirty(versionID, false)
}

// MarkSavedAt clears the dirty flag only if the graph is still at revision,
// so an edit made while a save was in flight stays dirty. It reports whether
// the flag was cleared.
func (s *Store) MarkSavedAt(versionID string, revision uint64) bool {
	cleared := false
	s.commit(func() []Change {
		if s.revision[versionID] != revision {
			return nil
		}
		s.dirty[versionID] = false
		cleared = true
		return []Change{s.change(versionID, ChangeDirty)}
	})
	return cleared
}

func (s *Store) setDirty(versionID string, dirty bool) {
	s.commit(func() []Change {
		s.dirty[versionID] = dirty
		return []Change{s.change(versionID, ChangeDirty)}
	})
}

// MarkValidationPending starts a validation run, keeping the current issues.
func (s *Store) MarkValidationPending(versionID string) {
	s.setValidation(versionID, func(prev validation.State) validation.State {
		return validation.Begin(prev)
	})
}

// SetValidationResult replaces the issues and returns to idle.
func (s *Store) SetValidationResult(versionID string, issues []models.CanvasValidationIssue) {
	s.setValidation(versionID, func(validation.State) validation.State {
		return validation.Resolve(issues)
	})
}

// SetValidationError records a failed run, keeping the current issues.
func (s *Store) SetValidationError(versionID string, message string) {
	s.setValidation(versionID, func(prev validation.State) validation.State {
		return validation.Fail(prev, message)
	})
}

func (s *Store) setValidation(versionID string, next func(validation.State) validation.State) {
	s.commit(func() []Change {
		s.validation[versionID] = next(s.validation[versionID])
		return []Change{s.change(versionID, ChangeValidation)}
	})
}

// Reset drops every working copy. Subscribers stay registered.
func (s *Store) Reset() {
	s.commit(func() []Change {
		s.clear()
		return []Change{{Kind: ChangeReset}}
	})
}
