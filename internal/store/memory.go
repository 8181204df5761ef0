package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/complyhq/issues-backend/v2/model"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// `memory` store backend.
type MemoryStore struct {
	mu      sync.RWMutex
	issues  map[string]*model.Issue
	active  map[model.FingerprintKey]string
	history map[string][]model.StatusHistoryEntry
	order   []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues:  make(map[string]*model.Issue),
		active:  make(map[model.FingerprintKey]string),
		history: make(map[string][]model.StatusHistoryEntry),
	}
}

// FindActiveByFingerprint implements IssueStore.
func (s *MemoryStore) FindActiveByFingerprint(_ context.Context, documentID, framework, fingerprint string) (*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[model.FingerprintKey{DocumentID: documentID, Framework: framework, Fingerprint: fingerprint}]
	if !ok {
		return nil, nil
	}
	return copyIssue(s.issues[id]), nil
}

// GetIssue implements IssueStore.
func (s *MemoryStore) GetIssue(_ context.Context, id string) (*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return copyIssue(issue), nil
}

// InsertIssue implements IssueStore.
func (s *MemoryStore) InsertIssue(_ context.Context, issue *model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.issues[issue.ID]; exists {
		return fmt.Errorf("issue %s already exists", issue.ID)
	}
	if issue.ActiveFingerprint() != "" {
		if _, taken := s.active[issue.Key()]; taken {
			return fmt.Errorf("%w: %s", model.ErrDuplicateActive, issue.Key())
		}
		s.active[issue.Key()] = issue.ID
	}
	s.issues[issue.ID] = copyIssue(issue)
	s.order = append(s.order, issue.ID)
	return nil
}

// UpdateIssue implements IssueStore.
func (s *MemoryStore) UpdateIssue(_ context.Context, id string, expectedRevision int64, update model.IssueUpdate, entry *model.StatusHistoryEntry) (*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if issue.Revision != expectedRevision {
		return nil, fmt.Errorf("%w: %s at revision %d, expected %d", model.ErrRevisionConflict, id, issue.Revision, expectedRevision)
	}

	update.Apply(issue)
	if entry != nil {
		e := *entry
		e.IssueID = id
		e.Sequence = issue.Revision
		s.history[id] = append(s.history[id], e)
	}
	return copyIssue(issue), nil
}

// Ping implements IssueStore.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// ListHistory implements IssueStore.
func (s *MemoryStore) ListHistory(_ context.Context, issueID string) ([]model.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[issueID]
	out := make([]model.StatusHistoryEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// ListIssues implements IssueStore.
func (s *MemoryStore) ListIssues(_ context.Context, filter model.IssueFilter) ([]model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Issue
	for _, id := range s.order {
		issue := s.issues[id]
		if !filter.Matches(issue) {
			continue
		}
		out = append(out, *copyIssue(issue))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// ListUnfingerprinted implements IssueStore.
func (s *MemoryStore) ListUnfingerprinted(_ context.Context, limit int) ([]model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Issue
	for _, id := range s.order {
		if s.issues[id].Fingerprint != "" {
			continue
		}
		out = append(out, *copyIssue(s.issues[id]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AssignFingerprint implements IssueStore.
func (s *MemoryStore) AssignFingerprint(_ context.Context, id, fingerprint string, supersededBy *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if issue.Fingerprint != "" {
		return false, nil
	}

	key := model.FingerprintKey{DocumentID: issue.DocumentID, Framework: issue.Framework, Fingerprint: fingerprint}
	if supersededBy == nil {
		if _, taken := s.active[key]; taken {
			return false, fmt.Errorf("%w: %s", model.ErrDuplicateActive, key)
		}
		s.active[key] = id
	}

	issue.Fingerprint = fingerprint
	issue.IsActive = supersededBy == nil
	issue.SupersededBy = supersededBy
	initCheckIDs(issue)
	return true, nil
}

// Close implements IssueStore.
func (s *MemoryStore) Close() error { return nil }

// initCheckIDs seeds first/last confirmed check ids from the originating check.
func initCheckIDs(issue *model.Issue) {
	if issue.FirstDetectedCheckID == "" {
		issue.FirstDetectedCheckID = issue.CheckID
	}
	if issue.LastConfirmedCheckID == "" {
		issue.LastConfirmedCheckID = issue.CheckID
	}
}

func copyIssue(issue *model.Issue) *model.Issue {
	if issue == nil {
		return nil
	}
	c := *issue
	c.AssignedTo = copyString(issue.AssignedTo)
	c.ResolvedBy = copyString(issue.ResolvedBy)
	c.ResolutionNotes = copyString(issue.ResolutionNotes)
	c.SupersededBy = copyString(issue.SupersededBy)
	if issue.ResolvedAt != nil {
		t := *issue.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ IssueStore = (*MemoryStore)(nil)
