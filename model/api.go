// Package model - API types for scan ingestion and issue management requests/responses
package model

// ScanResults is the body of POST /api/v1/scans and the payload of the
// offline reconcile command: one completed compliance run for one document.
type ScanResults struct {
	Scope
	Findings []Finding `json:"findings"`
}

// TransitionBody is the body of POST /api/v1/issues/:id/transition.
type TransitionBody struct {
	Action Action `json:"action"`
	Notes  string `json:"notes,omitempty"`
}

// TransitionResponse returns the issue after a manual transition.
type TransitionResponse struct {
	Success bool   `json:"success"`
	Issue   *Issue `json:"issue,omitempty"`
	Message string `json:"message,omitempty"`
}

// IssueWithHistory bundles an issue and its audit trail.
type IssueWithHistory struct {
	Issue   *Issue               `json:"issue"`
	History []StatusHistoryEntry `json:"history"`
}

// BackfillRequest configures a fingerprint backfill run.
type BackfillRequest struct {
	BatchSize int `json:"batch_size"`
}

// BackfillReport summarizes a fingerprint backfill run.
type BackfillReport struct {
	Scanned    int `json:"scanned"`
	Assigned   int `json:"assigned"`
	Superseded int `json:"superseded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// BackfillStatusResponse returns the state of the background backfill.
type BackfillStatusResponse struct {
	Running bool            `json:"running"`
	Status  string          `json:"status"`
	Report  *BackfillReport `json:"report,omitempty"`
}
