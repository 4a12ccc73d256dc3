package canvas

import "strategy-builder-go/internal/models"

// NodeUpdate lists the node fields to overwrite. Nil fields are left alone.
type NodeUpdate struct {
	Label    *string
	Type     *string
	Position *models.Position
	Metadata *models.NodeMetadata
}

// UpsertNode merges node into the node with the same id, or appends it.
func (s *Store) UpsertNode(versionID string, node models.StrategyNode) {
	incoming := node.Clone()
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		idx := g.NodeIndex(incoming.ID)
		if idx < 0 {
			g.Nodes = append(g.Nodes, incoming)
			return
		}
		existing := &g.Nodes[idx]
		if incoming.Label != "" {
			existing.Label = incoming.Label
		}
		if incoming.Type != "" {
			existing.Type = incoming.Type
		}
		if incoming.Position != nil {
			existing.Position = incoming.Position
		}
		if incoming.Metadata != nil {
			existing.Metadata = incoming.Metadata
		}
	})
}

// UpdateNode shallow-merges update into the node with nodeID, if present.
func (s *Store) UpdateNode(versionID, nodeID string, update NodeUpdate) {
	var position *models.Position
	if update.Position != nil {
		p := *update.Position
		position = &p
	}
	var metadata *models.NodeMetadata
	if update.Metadata != nil {
		m := (models.StrategyNode{Metadata: update.Metadata}).Clone().Metadata
		metadata = m
	}
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		idx := g.NodeIndex(nodeID)
		if idx < 0 {
			return
		}
		node := &g.Nodes[idx]
		if update.Label != nil {
			node.Label = *update.Label
		}
		if update.Type != nil {
			node.Type = *update.Type
		}
		if position != nil {
			node.Position = position
		}
		if metadata != nil {
			node.Metadata = metadata
		}
	})
}

// MoveNode replaces the position of a node.
func (s *Store) MoveNode(versionID, nodeID string, position models.Position) {
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		if idx := g.NodeIndex(nodeID); idx >= 0 {
			p := position
			g.Nodes[idx].Position = &p
		}
	})
}

// UpdateNodeParameter sets one parameter value on a node.
func (s *Store) UpdateNodeParameter(versionID, nodeID, key string, value any) {
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		idx := g.NodeIndex(nodeID)
		if idx < 0 {
			return
		}
		node := &g.Nodes[idx]
		if node.Metadata == nil {
			node.Metadata = &models.NodeMetadata{}
		}
		if node.Metadata.Parameters == nil {
			node.Metadata.Parameters = make(map[string]any)
		}
		node.Metadata.Parameters[key] = value
	})
}

// RemoveNode deletes a node and every edge that starts or ends at it.
func (s *Store) RemoveNode(versionID, nodeID string) {
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		nodes := g.Nodes[:0]
		for _, n := range g.Nodes {
			if n.ID != nodeID {
				nodes = append(nodes, n)
			}
		}
		g.Nodes = nodes

		edges := g.Edges[:0]
		for _, e := range g.Edges {
			if e.Source != nodeID && e.Target != nodeID {
				edges = append(edges, e)
			}
		}
		g.Edges = edges
	})
}

// ConnectNodes appends edge unless an edge with the same id exists. It does
// not look at source/target pairs; callers check for duplicates.
func (s *Store) ConnectNodes(versionID string, edge models.StrategyEdge) {
	incoming := edge.Clone()
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		if !g.HasEdge(incoming.ID) {
			g.Edges = append(g.Edges, incoming)
		}
	})
}

// ConnectIfAbsent appends edge unless the graph already connects its source
// to its target. It reports whether the edge was added. A refused edge leaves
// the history and dirty flag untouched.
func (s *Store) ConnectIfAbsent(versionID string, edge models.StrategyEdge) bool {
	incoming := edge.Clone()
	return s.apply(versionID, func(g *models.StrategyGraph) bool {
		if g.HasConnection(incoming.Source, incoming.Target) || g.HasEdge(incoming.ID) {
			return false
		}
		g.Edges = append(g.Edges, incoming)
		return true
	})
}

// RemoveEdge deletes the edge with edgeID.
func (s *Store) RemoveEdge(versionID, edgeID string) {
	s.UpdateGraph(versionID, func(g *models.StrategyGraph) {
		edges := g.Edges[:0]
		for _, e := range g.Edges {
			if e.ID != edgeID {
				edges = append(edges, e)
			}
		}
		g.Edges = edges
	})
}
