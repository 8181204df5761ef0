// Package store defines the persistence contract for issues and their status
// history, with in-memory, SQLite and ArangoDB implementations.
package store

import (
	"context"

	"github.com/complyhq/issues-backend/v2/model"
)

// IssueStore persists issues and the append-only status history ledger.
//
// Implementations must enforce that at most one active issue exists per
// (document_id, framework, fingerprint); InsertIssue reports a violation as
// model.ErrDuplicateActive. History rows are only written by UpdateIssue,
// so every entry's sequence is the revision it produced.
type IssueStore interface {
	// FindActiveByFingerprint returns the active issue for the key, or nil when none exists.
	FindActiveByFingerprint(ctx context.Context, documentID, framework, fingerprint string) (*model.Issue, error)
	// GetIssue returns model.ErrNotFound when id is unknown.
	GetIssue(ctx context.Context, id string) (*model.Issue, error)
	InsertIssue(ctx context.Context, issue *model.Issue) error
	// UpdateIssue applies update only if the stored revision equals
	// expectedRevision, appending entry (when non-nil) in the same atomic
	// step. The entry's sequence is set to the new revision.
	UpdateIssue(ctx context.Context, id string, expectedRevision int64, update model.IssueUpdate, entry *model.StatusHistoryEntry) (*model.Issue, error)
	// ListHistory returns the ledger for one issue in the order it was written.
	ListHistory(ctx context.Context, issueID string) ([]model.StatusHistoryEntry, error)
	ListIssues(ctx context.Context, filter model.IssueFilter) ([]model.Issue, error)
	// ListUnfingerprinted returns up to limit issues that have no fingerprint yet.
	ListUnfingerprinted(ctx context.Context, limit int) ([]model.Issue, error)
	// AssignFingerprint sets the fingerprint of a legacy issue and initializes
	// its activity tracking. It returns false when the issue already had one.
	// A non-nil supersededBy stores the issue inactive.
	AssignFingerprint(ctx context.Context, id, fingerprint string, supersededBy *string) (bool, error)
	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}
