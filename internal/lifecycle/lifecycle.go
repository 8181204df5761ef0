// Package lifecycle implements issue reconciliation, user-driven status
// transitions and the fingerprint backfill on top of an IssueStore.
package lifecycle

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/util"
	"github.com/google/uuid"
)

// Defaults for Config fields left at zero.
const (
	DefaultWorkers    = 8
	DefaultMaxRetries = 5
)

// Emitter receives lifecycle events. Implementations must not block.
type Emitter interface {
	Emit(event model.LifecycleEvent) bool
}

type nopEmitter struct{}

func (nopEmitter) Emit(model.LifecycleEvent) bool { return false }

// OutcomeRecorder counts the outcome of every reconcile attempt.
type OutcomeRecorder interface {
	ObserveOutcome(outcome model.Outcome)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(model.Outcome) {}

// Config tunes the reconciler and transitioner.
type Config struct {
	Workers    int    // findings reconciled concurrently within one run
	MaxRetries int    // attempts after a storage race before giving up
	Algorithm  string // fingerprint algorithm, see util.FingerprintWith
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Algorithm == "" {
		c.Algorithm = util.AlgorithmFNV1a32
	}
	return c
}

// retryPolicy returns the backoff used between attempts after a lost race.
func retryPolicy(maxRetries int) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(bo, uint64(maxRetries))
}

func newID() string {
	return uuid.NewString()
}

func findingInput(f model.Finding) util.FingerprintInput {
	return util.FingerprintInput{
		Title:       f.Title,
		Category:    f.Category,
		Severity:    string(f.Severity),
		Description: f.Description,
	}
}

func issueInput(i *model.Issue) util.FingerprintInput {
	return util.FingerprintInput{
		Title:       i.Title,
		Category:    i.Category,
		Severity:    string(i.Severity),
		Description: i.Description,
	}
}

func eventFor(issue *model.Issue, entry *model.StatusHistoryEntry) model.LifecycleEvent {
	return model.LifecycleEvent{
		EventID:     newID(),
		IssueID:     issue.ID,
		DocumentID:  issue.DocumentID,
		WorkspaceID: issue.WorkspaceID,
		Framework:   issue.Framework,
		OldStatus:   entry.OldStatus,
		NewStatus:   entry.NewStatus,
		ChangedBy:   entry.ChangedBy,
		Reason:      entry.Reason,
		OccurredAt:  entry.ChangedAt,
	}
}
