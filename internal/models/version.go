package models

import "time"

// StrategyVersionSummary is a persisted, named snapshot of a strategy graph.
// The live editable graph is a working copy keyed by the version id.
type StrategyVersionSummary struct {
	ID               string                  `json:"id"`
	Version          int                     `json:"version"`
	Label            string                  `json:"label"`
	Graph            StrategyGraph           `json:"graph"`
	ValidationIssues []CanvasValidationIssue `json:"validationIssues"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        *time.Time              `json:"updatedAt"`
}

// EducatorCallout is an annotation attached to a saved version.
type EducatorCallout struct {
	NodeID  string `json:"nodeId"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Tooltip string `json:"tooltip,omitempty"`
}
