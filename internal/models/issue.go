package models

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// CanvasValidationIssue is one problem reported for a graph. A nil NodeID
// marks a graph-level issue.
type CanvasValidationIssue struct {
	NodeID   *string  `json:"nodeId"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// CloneIssues copies a list of issues. A nil list becomes an empty one.
func CloneIssues(issues []CanvasValidationIssue) []CanvasValidationIssue {
	out := make([]CanvasValidationIssue, len(issues))
	for i, issue := range issues {
		out[i] = issue
		if issue.NodeID != nil {
			id := *issue.NodeID
			out[i].NodeID = &id
		}
	}
	return out
}

// IssuesByNode groups node-scoped issues by node id.
func IssuesByNode(issues []CanvasValidationIssue) map[string][]CanvasValidationIssue {
	grouped := make(map[string][]CanvasValidationIssue)
	for _, issue := range issues {
		if issue.NodeID == nil || *issue.NodeID == "" {
			continue
		}
		grouped[*issue.NodeID] = append(grouped[*issue.NodeID], issue)
	}
	return grouped
}

// GlobalIssues returns the issues that are not tied to a node.
func GlobalIssues(issues []CanvasValidationIssue) []CanvasValidationIssue {
	global := make([]CanvasValidationIssue, 0)
	for _, issue := range issues {
		if issue.NodeID == nil || *issue.NodeID == "" {
			global = append(global, issue)
		}
	}
	return global
}
