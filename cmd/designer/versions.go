package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/validation"
)

var (
	versionsJSON bool
	graphFile    string
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect and revert saved versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list <strategy-id>",
	Short: "List saved versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		list, err := e.versionsClient(e.tokens()).ListVersions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if versionsJSON {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		return printVersions(cmd.OutOrStdout(), list)
	},
}

var versionsRevertCmd = &cobra.Command{
	Use:   "revert <strategy-id> <version-id>",
	Short: "Create a new head version from a saved version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		created, err := e.versionsClient(e.tokens()).RevertVersion(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored version %s (%s)\n", created.Label, created.ID)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <strategy-id>",
	Short: "Validate a graph file against the versions API",
	Long: `validate reads a strategy graph from --file (JSON or YAML, "-" for stdin)
and prints the issues the server reports.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := readGraph(cmd.InOrStdin(), graphFile)
		if err != nil {
			return err
		}

		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		issues, err := e.versionsClient(e.tokens()).ValidateGraph(cmd.Context(), args[0], graph)
		if err != nil {
			return err
		}
		if versionsJSON {
			return writeJSON(cmd.OutOrStdout(), issues)
		}
		printIssues(cmd.OutOrStdout(), issues)
		return nil
	},
}

func init() {
	versionsListCmd.Flags().BoolVar(&versionsJSON, "json", false, "Output as JSON")
	validateCmd.Flags().BoolVar(&versionsJSON, "json", false, "Output as JSON")
	validateCmd.Flags().StringVarP(&graphFile, "file", "f", "-", "Graph file (JSON or YAML)")
	versionsCmd.AddCommand(versionsListCmd, versionsRevertCmd)
}

// readGraph decodes a graph from path, or from stdin when path is "-".
// YAML is a superset of JSON, so one decoder handles both; the result goes
// through JSON so parameter values get the same types as API responses.
func readGraph(stdin io.Reader, path string) (models.StrategyGraph, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.StrategyGraph{}, fmt.Errorf("failed to read graph: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return models.StrategyGraph{}, fmt.Errorf("failed to parse graph: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return models.StrategyGraph{}, fmt.Errorf("failed to parse graph: %w", err)
	}
	graph := models.EmptyGraph()
	if err := json.Unmarshal(encoded, &graph); err != nil {
		return models.StrategyGraph{}, fmt.Errorf("failed to parse graph: %w", err)
	}
	return graph.Clone(), nil
}

func printVersions(w io.Writer, list []models.StrategyVersionSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tLABEL\tID\tNODES\tISSUES\tCREATED")
	for _, v := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
			v.Version, v.Label, v.ID, len(v.Graph.Nodes), len(v.ValidationIssues), v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func printIssues(w io.Writer, issues []models.CanvasValidationIssue) {
	fmt.Fprintln(w, validation.Summary(validation.Resolve(issues)))
	for _, issue := range issues {
		node := "graph"
		if issue.NodeID != nil {
			node = *issue.NodeID
		}
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", issue.Severity, node, issue.Code, issue.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
