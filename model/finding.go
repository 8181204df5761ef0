// Package model - Scan findings and reconciliation results
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Finding is a single compliance problem reported by one analysis run.
// It is input only and never persisted directly.
type Finding struct {
	Severity       Severity        `json:"severity"`
	Category       string          `json:"category"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Recommendation string          `json:"recommendation"`
	Location       string          `json:"location,omitempty"`
	Excerpt        string          `json:"excerpt,omitempty"`
	Confidence     *int            `json:"confidence,omitempty"` // 0-100
	RawAnalysis    json.RawMessage `json:"raw_analysis,omitempty"`
}

// EffectiveConfidence returns the reported confidence clamped to [0,100],
// or DefaultConfidence when none was reported.
func (f Finding) EffectiveConfidence() int {
	if f.Confidence == nil {
		return DefaultConfidence
	}
	return ClampConfidence(*f.Confidence)
}

// ExcerptText prefers the excerpt and falls back to the location.
func (f Finding) ExcerptText() string {
	if e := strings.TrimSpace(f.Excerpt); e != "" {
		return e
	}
	return strings.TrimSpace(f.Location)
}

// Validate checks the fields the scan producer must always send.
func (f Finding) Validate() error {
	if !f.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, f.Severity)
	}
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("%w: finding title is required", ErrInvalidInput)
	}
	return nil
}

// ClampConfidence bounds a confidence score to [0,100].
func ClampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// Scope identifies the document, framework and run a batch of findings belongs to.
type Scope struct {
	DocumentID  string `json:"document_id"`
	WorkspaceID string `json:"workspace_id"`
	Framework   string `json:"framework"`
	CheckID     string `json:"check_id"`
	Priority    int    `json:"priority,omitempty"` // 0 = derive from severity and confidence
}

// Validate checks that the scope is complete.
func (s Scope) Validate() error {
	switch {
	case s.DocumentID == "":
		return fmt.Errorf("%w: document_id is required", ErrInvalidInput)
	case s.Framework == "":
		return fmt.Errorf("%w: framework is required", ErrInvalidInput)
	case s.CheckID == "":
		return fmt.Errorf("%w: check_id is required", ErrInvalidInput)
	}
	return nil
}

// Outcome is the reconciliation decision taken for one finding.
type Outcome string

// Outcome values
const (
	OutcomeCreated            Outcome = "created"
	OutcomeUpdated            Outcome = "updated"
	OutcomeReopened           Outcome = "reopened"
	OutcomeDismissedConfirmed Outcome = "dismissed_confirmed"
	OutcomeFailed             Outcome = "failed"
)

// ReconcileResult describes what happened to a single finding.
type ReconcileResult struct {
	IssueID        string  `json:"issue_id,omitempty"`
	Fingerprint    string  `json:"fingerprint"`
	IsNew          bool    `json:"is_new"`
	Status         Outcome `json:"status"`
	PreviousStatus Status  `json:"previous_status,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// RunSummary aggregates the per-finding results of one compliance run.
type RunSummary struct {
	DocumentID         string            `json:"document_id"`
	Framework          string            `json:"framework"`
	CheckID            string            `json:"check_id"`
	Created            int               `json:"created"`
	Updated            int               `json:"updated"`
	Reopened           int               `json:"reopened"`
	DismissedConfirmed int               `json:"dismissed_confirmed"`
	Failed             int               `json:"failed"`
	Results            []ReconcileResult `json:"results"`
}

// Add folds one result into the counters.
func (s *RunSummary) Add(r ReconcileResult) {
	switch r.Status {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeReopened:
		s.Reopened++
	case OutcomeDismissedConfirmed:
		s.DismissedConfirmed++
	default:
		s.Failed++
	}
}

// Recount recomputes the counters from Results.
func (s *RunSummary) Recount() {
	s.Created, s.Updated, s.Reopened, s.DismissedConfirmed, s.Failed = 0, 0, 0, 0, 0
	for _, r := range s.Results {
		s.Add(r)
	}
}
