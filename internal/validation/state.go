// Package validation tracks the validation status of one working copy.
//
// A State is one of Idle, Pending or Failed. Pending and Failed keep the
// issues of the previous run so a reader never sees an empty list while a
// new run is in flight.
package validation

import (
	"encoding/json"
	"fmt"

	"strategy-builder-go/internal/models"
)

// Status names the variant of a State.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// State is the sealed set of validation states.
type State interface {
	Status() Status
	Issues() []models.CanvasValidationIssue
	isState()
}

// Idle holds the result of the last completed run.
type Idle struct {
	IssueList []models.CanvasValidationIssue
}

// Pending marks a run in flight.
type Pending struct {
	IssueList []models.CanvasValidationIssue
}

// Failed marks a run that did not complete.
type Failed struct {
	IssueList []models.CanvasValidationIssue
	Message   string
}

func (Idle) Status() Status    { return StatusIdle }
func (Pending) Status() Status { return StatusPending }
func (Failed) Status() Status  { return StatusError }

func (s Idle) Issues() []models.CanvasValidationIssue    { return s.IssueList }
func (s Pending) Issues() []models.CanvasValidationIssue { return s.IssueList }
func (s Failed) Issues() []models.CanvasValidationIssue  { return s.IssueList }

func (Idle) isState()    {}
func (Pending) isState() {}
func (Failed) isState()  {}

// Initial returns the Idle state used when a version is loaded.
func Initial(issues []models.CanvasValidationIssue) State {
	return Idle{IssueList: models.CloneIssues(issues)}
}

// Begin moves prev to Pending, keeping its issues. A nil prev has none.
func Begin(prev State) State {
	return Pending{IssueList: issuesOf(prev)}
}

// Resolve replaces the issues wholesale and returns to Idle.
func Resolve(issues []models.CanvasValidationIssue) State {
	return Idle{IssueList: models.CloneIssues(issues)}
}

// Fail keeps the issues of prev and records message.
func Fail(prev State, message string) State {
	return Failed{IssueList: issuesOf(prev), Message: message}
}

// MessageOf returns the failure message, or "" for non-failed states.
func MessageOf(s State) string {
	switch v := s.(type) {
	case Failed:
		return v.Message
	case Idle, Pending, nil:
		return ""
	default:
		panic("validation: unknown state")
	}
}

// Summary is the one-line status shown next to the canvas toolbar.
func Summary(s State) string {
	switch v := s.(type) {
	case Pending:
		return "Running validation"
	case Failed:
		return v.Message
	case Idle:
		if len(v.IssueList) == 0 {
			return "All checks passed"
		}
		return fmt.Sprintf("%d issues detected", len(v.IssueList))
	case nil:
		return ""
	default:
		panic("validation: unknown state")
	}
}

func issuesOf(s State) []models.CanvasValidationIssue {
	if s == nil {
		return []models.CanvasValidationIssue{}
	}
	return models.CloneIssues(s.Issues())
}

type wireState struct {
	Status  Status                         `json:"status"`
	Issues  []models.CanvasValidationIssue `json:"issues"`
	Message string                         `json:"message,omitempty"`
}

func (s Idle) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireState{Status: StatusIdle, Issues: models.CloneIssues(s.IssueList)})
}

func (s Pending) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireState{Status: StatusPending, Issues: models.CloneIssues(s.IssueList)})
}

func (s Failed) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireState{Status: StatusError, Issues: models.CloneIssues(s.IssueList), Message: s.Message})
}
