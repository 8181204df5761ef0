package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
}

func (e *recordingEmitter) Emit(event model.LifecycleEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return true
}

func (e *recordingEmitter) all() []model.LifecycleEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.LifecycleEvent, len(e.events))
	copy(out, e.events)
	return out
}

var errStoreDown = errors.New("store unavailable")

// faultyStore wraps a store and injects failures.
type faultyStore struct {
	store.IssueStore

	mu              sync.Mutex
	failInsertTitle string
	failAssignID    string
	updateConflicts int
}

func (s *faultyStore) InsertIssue(ctx context.Context, issue *model.Issue) error {
	if s.failInsertTitle != "" && issue.Title == s.failInsertTitle {
		return errStoreDown
	}
	return s.IssueStore.InsertIssue(ctx, issue)
}

func (s *faultyStore) UpdateIssue(ctx context.Context, id string, rev int64, update model.IssueUpdate, entry *model.StatusHistoryEntry) (*model.Issue, error) {
	s.mu.Lock()
	if s.updateConflicts > 0 {
		s.updateConflicts--
		s.mu.Unlock()
		return nil, model.ErrRevisionConflict
	}
	s.mu.Unlock()
	return s.IssueStore.UpdateIssue(ctx, id, rev, update, entry)
}

func (s *faultyStore) AssignFingerprint(ctx context.Context, id, fingerprint string, supersededBy *string) (bool, error) {
	if id == s.failAssignID {
		return false, errStoreDown
	}
	return s.IssueStore.AssignFingerprint(ctx, id, fingerprint, supersededBy)
}

func intPtr(v int) *int { return &v }

func mfaFinding(confidence int) model.Finding {
	return model.Finding{
		Severity:    model.SeverityHigh,
		Category:    "auth",
		Title:       "Missing MFA for admin accounts",
		Description: "Administrative accounts can sign in with a password only.",
		Confidence:  intPtr(confidence),
	}
}

func testScope(checkID string) model.Scope {
	return model.Scope{
		DocumentID:  "doc-1",
		WorkspaceID: "ws-1",
		Framework:   "SOC2",
		CheckID:     checkID,
	}
}
