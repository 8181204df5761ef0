// Package scans defines the Kafka contracts for completed compliance scans
// and for the issue lifecycle events published in response.
package scans

import (
	"time"

	"github.com/complyhq/issues-backend/v2/model"
)

// Event types and the schema range this service understands.
const (
	EventTypeScanCompleted    = "compliance.scan.completed"
	EventTypeIssueLifecycle   = "compliance.issue.status_changed"
	SchemaVersion             = "v1"
	SupportedSchemaConstraint = "^1"
)

// ScanCompletedEvent is published by the compliance analysis pipeline once a
// check over one document has finished.
type ScanCompletedEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	Scan model.ScanResults `json:"scan"`
}

// IssueLifecycleEvent wraps a status change for downstream consumers
// (notification and dashboard services).
type IssueLifecycleEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	Change model.LifecycleEvent `json:"change"`
}
