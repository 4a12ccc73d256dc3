package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strategy-builder-go/internal/models"
)

func TestCommandTree(t *testing.T) {
	assert.Equal(t, "designer", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["versions"])
	assert.True(t, names["validate"])

	assert.True(t, versionsCmd.HasSubCommands())
	assert.NotNil(t, versionsListCmd.RunE)
	assert.NotNil(t, versionsRevertCmd.RunE)
	assert.NotNil(t, serveCmd.Flags().Lookup("strategy"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestReadGraph(t *testing.T) {
	t.Run("JSONFromStdin", func(t *testing.T) {
		in := strings.NewReader(`{"nodes":[{"id":"a","label":"SMA","type":"sma","metadata":{"parameters":{"period":14}}}],"edges":[]}`)
		g, err := readGraph(in, "-")
		require.NoError(t, err)
		require.Len(t, g.Nodes, 1)
		assert.Equal(t, float64(14), g.Nodes[0].Metadata.Parameters["period"])
		assert.NotNil(t, g.Edges)
	})

	t.Run("YAMLFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graph.yaml")
		content := `nodes:
  - id: a
    label: Market Data
    type: market-data
  - id: b
    label: SMA
    type: sma
edges:
  - id: e1
    source: a
    target: b
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		g, err := readGraph(nil, path)
		require.NoError(t, err)
		assert.Len(t, g.Nodes, 2)
		assert.True(t, g.HasConnection("a", "b"))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := readGraph(strings.NewReader("nodes: [\n"), "-")
		assert.Error(t, err)

		_, err = readGraph(nil, filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorContains(t, err, "failed to read graph")
	})
}

func TestPrintVersions(t *testing.T) {
	var buf bytes.Buffer
	list := []models.StrategyVersionSummary{{
		ID:               "v2",
		Version:          2,
		Label:            "Auto Save v2",
		Graph:            models.EmptyGraph(),
		ValidationIssues: []models.CanvasValidationIssue{},
		CreatedAt:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, printVersions(&buf, list))
	out := buf.String()
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "Auto Save v2")
	assert.Contains(t, out, "2024-05-01 10:00:00")
}

func TestPrintIssues(t *testing.T) {
	var buf bytes.Buffer
	nodeID := "a"
	printIssues(&buf, []models.CanvasValidationIssue{
		{NodeID: &nodeID, Code: "missing_input", Message: "Connect a source", Severity: models.SeverityError},
		{Code: "no_order", Message: "Add an order block", Severity: models.SeverityWarning},
	})
	out := buf.String()
	assert.Contains(t, out, "2 issues detected")
	assert.Contains(t, out, "[error] a missing_input: Connect a source")
	assert.Contains(t, out, "[warning] graph no_order")

	buf.Reset()
	printIssues(&buf, nil)
	assert.Equal(t, "All checks passed\n", buf.String())
}
