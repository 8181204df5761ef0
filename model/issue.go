// Package model - Compliance issue records and their lifecycle
package model

import "time"

// Severity is the closed severity enum reported by the scan producer.
type Severity string

// Severity values
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Status is the lifecycle state of an Issue.
type Status string

// Status values
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusDismissed  Status = "dismissed"
	StatusReopened   Status = "reopened"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusDismissed, StatusReopened:
		return true
	}
	return false
}

// IsOpenLike is true for the states that behave as open during reconciliation.
func (s Status) IsOpenLike() bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusReopened
}

// SystemActor is the changed_by value used for automated reconciliation.
const SystemActor = "system"

// DefaultConfidence is applied when a finding carries no confidence score.
const DefaultConfidence = 70

// Issue is the durable, deduplicated record of a compliance finding.
type Issue struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	WorkspaceID string `json:"workspace_id"`
	Framework   string `json:"framework"`
	Fingerprint string `json:"fingerprint"` // empty only for rows created before fingerprinting

	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Excerpt        string   `json:"excerpt,omitempty"`
	Confidence     int      `json:"confidence"` // most recent observed value, 0-100
	Priority       int      `json:"priority"`   // 1 (most urgent) .. 4

	Status          Status     `json:"status"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`

	IsActive             bool    `json:"is_active"`
	SupersededBy         *string `json:"superseded_by,omitempty"` // set when backfill finds an older active twin
	CheckID              string  `json:"check_id,omitempty"`      // originating check, pre-fingerprint schema
	FirstDetectedCheckID string  `json:"first_detected_check_id"`
	LastConfirmedCheckID string  `json:"last_confirmed_check_id"`

	Revision  int64     `json:"revision"` // bumped on every update, used for optimistic concurrency
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveFingerprint returns the fingerprint when the issue takes part in
// the at-most-one-active constraint and an empty string otherwise.
func (i *Issue) ActiveFingerprint() string {
	if !i.IsActive || i.Fingerprint == "" {
		return ""
	}
	return i.Fingerprint
}

// Key identifies the dedup scope of an issue.
func (i *Issue) Key() FingerprintKey {
	return FingerprintKey{DocumentID: i.DocumentID, Framework: i.Framework, Fingerprint: i.Fingerprint}
}

// FingerprintKey is the (document, framework, fingerprint) triple that scopes
// uniqueness of an active issue.
type FingerprintKey struct {
	DocumentID  string
	Framework   string
	Fingerprint string
}

// String renders the key for lock tables and log fields.
func (k FingerprintKey) String() string {
	return k.DocumentID + "|" + k.Framework + "|" + k.Fingerprint
}

// StatusHistoryEntry is one append-only row of the lifecycle audit trail.
type StatusHistoryEntry struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	Sequence  int64     `json:"sequence"` // issue revision produced by the change
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	ChangedBy string    `json:"changed_by"`
	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

// IssueUpdate carries the mutable fields of an issue. Nil fields are left untouched.
type IssueUpdate struct {
	Status               *Status
	Confidence           *int
	Priority             *int
	LastConfirmedCheckID *string
	AssignedTo           *string
	ResolvedAt           *time.Time
	ResolvedBy           *string
	ResolutionNotes      *string
	UpdatedAt            time.Time
}

// Apply copies the set fields of u onto issue and bumps its revision.
func (u IssueUpdate) Apply(issue *Issue) {
	if u.Status != nil {
		issue.Status = *u.Status
	}
	if u.Confidence != nil {
		issue.Confidence = *u.Confidence
	}
	if u.Priority != nil {
		issue.Priority = *u.Priority
	}
	if u.LastConfirmedCheckID != nil {
		issue.LastConfirmedCheckID = *u.LastConfirmedCheckID
	}
	if u.AssignedTo != nil {
		issue.AssignedTo = u.AssignedTo
	}
	if u.ResolvedAt != nil {
		issue.ResolvedAt = u.ResolvedAt
	}
	if u.ResolvedBy != nil {
		issue.ResolvedBy = u.ResolvedBy
	}
	if u.ResolutionNotes != nil {
		issue.ResolutionNotes = u.ResolutionNotes
	}
	issue.UpdatedAt = u.UpdatedAt
	issue.Revision++
}

// IssueFilter narrows ListIssues. Empty fields match everything.
type IssueFilter struct {
	DocumentID  string
	WorkspaceID string
	Framework   string
	Status      Status
	ActiveOnly  bool
	Limit       int
}

// Matches reports whether issue passes the filter.
func (f IssueFilter) Matches(issue *Issue) bool {
	if f.DocumentID != "" && issue.DocumentID != f.DocumentID {
		return false
	}
	if f.WorkspaceID != "" && issue.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.Framework != "" && issue.Framework != f.Framework {
		return false
	}
	if f.Status != "" && issue.Status != f.Status {
		return false
	}
	if f.ActiveOnly && !issue.IsActive {
		return false
	}
	return true
}

// NewIssue creates an open issue for a first detection.
func NewIssue(id string, scope Scope, finding Finding, fingerprint string, priority int, now time.Time) *Issue {
	return &Issue{
		ID:                   id,
		DocumentID:           scope.DocumentID,
		WorkspaceID:          scope.WorkspaceID,
		Framework:            scope.Framework,
		Fingerprint:          fingerprint,
		Severity:             finding.Severity,
		Category:             finding.Category,
		Title:                finding.Title,
		Description:          finding.Description,
		Recommendation:       finding.Recommendation,
		Excerpt:              finding.ExcerptText(),
		Confidence:           finding.EffectiveConfidence(),
		Priority:             priority,
		Status:               StatusOpen,
		IsActive:             true,
		CheckID:              scope.CheckID,
		FirstDetectedCheckID: scope.CheckID,
		LastConfirmedCheckID: scope.CheckID,
		Revision:             1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
