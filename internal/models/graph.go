package models

// Position is the canvas coordinate of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeMetadata carries the parameter values and help text of a block.
// Parameter values are numbers, strings or booleans.
type NodeMetadata struct {
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
	Hint        string         `json:"hint,omitempty"`
}

// StrategyNode is one block placed on the canvas.
type StrategyNode struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Type     string        `json:"type"` // block kind
	Position *Position     `json:"position,omitempty"`
	Metadata *NodeMetadata `json:"metadata,omitempty"`
}

// StrategyEdge connects the output of one node to the input of another.
// Source and target are not checked against the node list here; dangling
// edges are reported by validation.
type StrategyEdge struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"sourceHandle,omitempty"`
	TargetHandle *string `json:"targetHandle,omitempty"`
}

// StrategyGraph is a directed graph of blocks. Node order is only the
// rendering order.
type StrategyGraph struct {
	Nodes []StrategyNode `json:"nodes"`
	Edges []StrategyEdge `json:"edges"`
}

// EmptyGraph returns a graph with no nodes and no edges.
func EmptyGraph() StrategyGraph {
	return StrategyGraph{Nodes: []StrategyNode{}, Edges: []StrategyEdge{}}
}

// Clone returns a copy of the graph that shares no mutable state with g.
func (g StrategyGraph) Clone() StrategyGraph {
	out := StrategyGraph{
		Nodes: make([]StrategyNode, len(g.Nodes)),
		Edges: make([]StrategyEdge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// Clone copies the node including its position and a shallow copy of the
// parameter map. Parameter values are primitives so that is enough.
func (n StrategyNode) Clone() StrategyNode {
	out := n
	if n.Position != nil {
		p := *n.Position
		out.Position = &p
	}
	if n.Metadata != nil {
		m := *n.Metadata
		if n.Metadata.Parameters != nil {
			m.Parameters = make(map[string]any, len(n.Metadata.Parameters))
			for k, v := range n.Metadata.Parameters {
				m.Parameters[k] = v
			}
		}
		out.Metadata = &m
	}
	return out
}

// Clone copies the edge and its optional handles.
func (e StrategyEdge) Clone() StrategyEdge {
	out := e
	if e.SourceHandle != nil {
		h := *e.SourceHandle
		out.SourceHandle = &h
	}
	if e.TargetHandle != nil {
		h := *e.TargetHandle
		out.TargetHandle = &h
	}
	return out
}

// NodeIndex returns the position of the node with the given id, or -1.
func (g StrategyGraph) NodeIndex(id string) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// HasEdge reports whether an edge with the given id exists.
func (g StrategyGraph) HasEdge(id string) bool {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return true
		}
	}
	return false
}

// HasConnection reports whether any edge already links source to target.
func (g StrategyGraph) HasConnection(source, target string) bool {
	for i := range g.Edges {
		if g.Edges[i].Source == source && g.Edges[i].Target == target {
			return true
		}
	}
	return false
}
