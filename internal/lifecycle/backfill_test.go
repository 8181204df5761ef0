package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func legacyIssue(id string, f model.Finding, created time.Time) *model.Issue {
	issue := model.NewIssue(id, testScope("legacy-check-"+id), f, "", 3, created)
	issue.FirstDetectedCheckID = ""
	issue.LastConfirmedCheckID = ""
	issue.IsActive = false
	return issue
}

func TestBackfillAssignsFingerprints(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	findings := runFindings()
	for i, f := range findings {
		require.NoError(t, s.InsertIssue(ctx, legacyIssue(string(rune('a'+i)), f, t0.Add(time.Duration(i)*time.Hour))))
	}

	b := NewBackfiller(s, zap.NewNop(), Config{})
	report, err := b.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.BackfillReport{Scanned: 3, Assigned: 3}, report)

	issue, err := s.GetIssue(ctx, "a")
	require.NoError(t, err)
	assert.NotEmpty(t, issue.Fingerprint)
	assert.True(t, issue.IsActive)
	assert.Equal(t, "legacy-check-a", issue.FirstDetectedCheckID)
	assert.Equal(t, "legacy-check-a", issue.LastConfirmedCheckID)

	again, err := b.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.BackfillReport{}, again)
}

func TestBackfillMatchesReconcilerFingerprint(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.InsertIssue(ctx, legacyIssue("legacy", mfaFinding(70), time.Now().UTC())))

	_, err := NewBackfiller(s, zap.NewNop(), Config{}).Run(ctx, 0)
	require.NoError(t, err)

	res := reconcileOne(t, newTestReconciler(s, nil), mfaFinding(85), testScope("check-9"))
	assert.False(t, res.IsNew)
	assert.Equal(t, "legacy", res.IssueID)
}

func TestBackfillSupersedesTwins(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertIssue(ctx, legacyIssue("older", mfaFinding(70), t0)))
	require.NoError(t, s.InsertIssue(ctx, legacyIssue("newer", mfaFinding(90), t0.Add(time.Hour))))

	report, err := NewBackfiller(s, zap.NewNop(), Config{}).Run(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, 1, report.Superseded)

	older, err := s.GetIssue(ctx, "older")
	require.NoError(t, err)
	assert.True(t, older.IsActive)

	newer, err := s.GetIssue(ctx, "newer")
	require.NoError(t, err)
	assert.False(t, newer.IsActive)
	require.NotNil(t, newer.SupersededBy)
	assert.Equal(t, "older", *newer.SupersededBy)
	assert.Equal(t, older.Fingerprint, newer.Fingerprint)

	active, err := s.ListIssues(ctx, model.IssueFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBackfillContinuesPastFailures(t *testing.T) {
	base := store.NewMemoryStore()
	s := &faultyStore{IssueStore: base, failAssignID: "b"}
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, f := range runFindings() {
		require.NoError(t, base.InsertIssue(ctx, legacyIssue(string(rune('a'+i)), f, t0.Add(time.Duration(i)*time.Minute))))
	}

	report, err := NewBackfiller(s, zap.NewNop(), Config{}).Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Assigned)
	assert.Equal(t, 1, report.Failed)

	pending, err := base.ListUnfingerprinted(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)
}

func TestBackfillHonorsCancellation(t *testing.T) {
	s := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.InsertIssue(ctx, legacyIssue("a", mfaFinding(70), time.Now().UTC())))
	cancel()

	_, err := NewBackfiller(s, zap.NewNop(), Config{}).Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
