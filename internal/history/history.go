// Package history keeps the bounded undo/redo snapshots of one graph.
package history

import "strategy-builder-go/internal/models"

// Limit is the maximum number of undo snapshots kept per graph.
const Limit = 50

// Stack holds past snapshots (oldest first) and future snapshots (nearest
// redo first). The zero value is an empty stack.
type Stack struct {
	Past   []models.StrategyGraph `json:"past"`
	Future []models.StrategyGraph `json:"future"`
}

// Push records a snapshot taken before a mutation. The snapshot must already
// be a clone. The oldest entry is evicted past Limit and Future is cleared.
func (s *Stack) Push(snapshot models.StrategyGraph) {
	s.Past = append(s.Past, snapshot)
	if len(s.Past) > Limit {
		s.Past = append([]models.StrategyGraph(nil), s.Past[len(s.Past)-Limit:]...)
	}
	s.Future = nil
}

// Undo returns the graph to restore and true, moving a clone of current onto
// the front of Future. With nothing to undo it returns current and false.
func (s *Stack) Undo(current models.StrategyGraph) (models.StrategyGraph, bool) {
	if len(s.Past) == 0 {
		return current, false
	}
	last := len(s.Past) - 1
	previous := s.Past[last]
	s.Past = s.Past[:last]
	s.Future = append([]models.StrategyGraph{current.Clone()}, s.Future...)
	return previous.Clone(), true
}

// Redo is the inverse of Undo. Future has no cap; it only grows through Undo.
func (s *Stack) Redo(current models.StrategyGraph) (models.StrategyGraph, bool) {
	if len(s.Future) == 0 {
		return current, false
	}
	next := s.Future[0]
	s.Future = s.Future[1:]
	s.Past = append(s.Past, current.Clone())
	return next.Clone(), true
}

// CanUndo reports whether Undo would change anything.
func (s *Stack) CanUndo() bool { return s != nil && len(s.Past) > 0 }

// CanRedo reports whether Redo would change anything.
func (s *Stack) CanRedo() bool { return s != nil && len(s.Future) > 0 }

// Clone copies the stack and every snapshot in it.
func (s *Stack) Clone() Stack {
	var out Stack
	if s == nil {
		return out
	}
	for _, g := range s.Past {
		out.Past = append(out.Past, g.Clone())
	}
	for _, g := range s.Future {
		out.Future = append(out.Future, g.Clone())
	}
	return out
}
