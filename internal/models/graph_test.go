package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleGraph() StrategyGraph {
	handle := "out"
	return StrategyGraph{
		Nodes: []StrategyNode{
			{
				ID:       "a",
				Label:    "Market Data",
				Type:     "market-data",
				Position: &Position{X: 10, Y: 20},
				Metadata: &NodeMetadata{
					Parameters:  map[string]any{"symbol": "BTCUSDT", "interval": 60.0},
					Description: "Price feed",
				},
			},
			{ID: "b", Label: "SMA", Type: "sma"},
		},
		Edges: []StrategyEdge{{ID: "e1", Source: "a", Target: "b", SourceHandle: &handle}},
	}
}

func TestStrategyGraph_Clone_IsIndependent(t *testing.T) {
	original := sampleGraph()
	clone := original.Clone()

	assert.Equal(t, original, clone)

	clone.Nodes[0].Label = "changed"
	clone.Nodes[0].Position.X = 99
	clone.Nodes[0].Metadata.Parameters["symbol"] = "ETHUSDT"
	clone.Nodes[0].Metadata.Description = "changed"
	*clone.Edges[0].SourceHandle = "changed"
	clone.Nodes = append(clone.Nodes, StrategyNode{ID: "c"})
	clone.Edges[0].Target = "c"

	assert.Equal(t, sampleGraph(), original)
}

func TestStrategyGraph_Clone_Empty(t *testing.T) {
	clone := StrategyGraph{}.Clone()
	assert.NotNil(t, clone.Nodes)
	assert.NotNil(t, clone.Edges)
	assert.Empty(t, clone.Nodes)
	assert.Empty(t, clone.Edges)
}

func TestStrategyGraph_Lookups(t *testing.T) {
	g := sampleGraph()
	assert.Equal(t, 1, g.NodeIndex("b"))
	assert.Equal(t, -1, g.NodeIndex("missing"))
	assert.True(t, g.HasEdge("e1"))
	assert.False(t, g.HasEdge("e2"))
	assert.True(t, g.HasConnection("a", "b"))
	assert.False(t, g.HasConnection("b", "a"))
}

func TestIssueGrouping(t *testing.T) {
	nodeA := "a"
	issues := []CanvasValidationIssue{
		{NodeID: &nodeA, Code: "missing_input", Severity: SeverityError},
		{NodeID: nil, Code: "quota_exceeded", Severity: SeverityError},
		{NodeID: &nodeA, Code: "parameter_below_min", Severity: SeverityWarning},
	}

	byNode := IssuesByNode(issues)
	assert.Len(t, byNode["a"], 2)
	global := GlobalIssues(issues)
	assert.Len(t, global, 1)
	assert.Equal(t, "quota_exceeded", global[0].Code)

	copied := CloneIssues(issues)
	*copied[0].NodeID = "z"
	assert.Equal(t, "a", *issues[0].NodeID)
	assert.NotNil(t, CloneIssues(nil))
}

func TestPrefixedIDs(t *testing.T) {
	id := NewPrefixedID("sma")
	assert.Regexp(t, `^sma-[0-9a-f]{8}$`, id)
	assert.Len(t, NewPrefixedID(""), 8)

	assert.True(t, IsPersistableID("3f2504e0-4f89-11d3-9a0c-0305e82c3301"))
	assert.False(t, IsPersistableID("demo-strategy"))
	assert.False(t, IsPersistableID("3f2504e04f8911d39a0c0305e82c3301"))
}
