package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedIssue(t *testing.T, s store.IssueStore) string {
	t.Helper()
	r := newTestReconciler(s, nil)
	return reconcileOne(t, r, mfaFinding(70), testScope("check-1")).IssueID
}

func workspaceAuthorizer(allowed map[string][]string) Authorizer {
	return AuthorizerFunc(func(_ context.Context, userID, workspaceID string) (bool, error) {
		for _, ws := range allowed[userID] {
			if ws == workspaceID {
				return true, nil
			}
		}
		return false, nil
	})
}

func TestTransitionResolveRecordsMetadata(t *testing.T) {
	s := store.NewMemoryStore()
	emitter := &recordingEmitter{}
	tr := NewTransitioner(s, AllowAll, emitter, zap.NewNop(), Config{})
	ctx := context.Background()
	id := seedIssue(t, s)

	issue, err := tr.Apply(ctx, model.TransitionRequest{IssueID: id, UserID: "alice", Action: model.ActionResolve, Notes: "MFA enforced via IdP"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, issue.Status)
	require.NotNil(t, issue.ResolvedAt)
	require.NotNil(t, issue.ResolvedBy)
	assert.Equal(t, "alice", *issue.ResolvedBy)
	require.NotNil(t, issue.ResolutionNotes)
	assert.Equal(t, "MFA enforced via IdP", *issue.ResolutionNotes)

	history, err := s.ListHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.StatusOpen, history[0].OldStatus)
	assert.Equal(t, model.StatusResolved, history[0].NewStatus)
	assert.Equal(t, "alice", history[0].ChangedBy)
	assert.Equal(t, "MFA enforced via IdP", history[0].Reason)

	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].IssueID)
	assert.Equal(t, model.StatusOpen, events[0].OldStatus)
	assert.Equal(t, model.StatusResolved, events[0].NewStatus)
	assert.Equal(t, "ws-1", events[0].WorkspaceID)
}

func TestTransitionStateMachine(t *testing.T) {
	tests := []struct {
		name    string
		actions []model.Action
		want    model.Status
		wantErr error
	}{
		{name: "start work", actions: []model.Action{model.ActionStart}, want: model.StatusInProgress},
		{name: "stop work", actions: []model.Action{model.ActionStart, model.ActionStop}, want: model.StatusOpen},
		{name: "dismiss then reopen", actions: []model.Action{model.ActionDismiss, model.ActionReopen}, want: model.StatusOpen},
		{name: "resolve then dismiss", actions: []model.Action{model.ActionResolve, model.ActionDismiss}, want: model.StatusDismissed},
		{name: "dismissed cannot resolve", actions: []model.Action{model.ActionDismiss, model.ActionResolve}, wantErr: model.ErrInvalidTransition},
		{name: "open cannot reopen", actions: []model.Action{model.ActionReopen}, wantErr: model.ErrInvalidTransition},
		{name: "open cannot stop", actions: []model.Action{model.ActionStop}, wantErr: model.ErrInvalidTransition},
		{name: "unknown action", actions: []model.Action{"escalate"}, wantErr: model.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			tr := NewTransitioner(s, AllowAll, nil, zap.NewNop(), Config{})
			ctx := context.Background()
			id := seedIssue(t, s)

			var (
				issue *model.Issue
				err   error
			)
			for _, action := range tt.actions {
				issue, err = tr.Apply(ctx, model.TransitionRequest{IssueID: id, UserID: "alice", Action: action})
				if err != nil {
					break
				}
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, issue.Status)

			history, err := s.ListHistory(ctx, id)
			require.NoError(t, err)
			assert.Len(t, history, len(tt.actions))
		})
	}
}

func TestTransitionStartAssigns(t *testing.T) {
	s := store.NewMemoryStore()
	tr := NewTransitioner(s, AllowAll, nil, zap.NewNop(), Config{})
	id := seedIssue(t, s)

	issue, err := tr.Apply(context.Background(), model.TransitionRequest{IssueID: id, UserID: "dave", Action: model.ActionStart})
	require.NoError(t, err)
	require.NotNil(t, issue.AssignedTo)
	assert.Equal(t, "dave", *issue.AssignedTo)
}

func TestTransitionInvalidLeavesNoTrace(t *testing.T) {
	s := store.NewMemoryStore()
	emitter := &recordingEmitter{}
	tr := NewTransitioner(s, AllowAll, emitter, zap.NewNop(), Config{})
	ctx := context.Background()
	id := seedIssue(t, s)

	_, err := tr.Apply(ctx, model.TransitionRequest{IssueID: id, UserID: "alice", Action: model.ActionReopen})
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	history, err := s.ListHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, emitter.all())
}

func TestTransitionNotFound(t *testing.T) {
	tr := NewTransitioner(store.NewMemoryStore(), AllowAll, nil, zap.NewNop(), Config{})
	_, err := tr.Apply(context.Background(), model.TransitionRequest{IssueID: "missing", UserID: "alice", Action: model.ActionResolve})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, model.IsRetryable(err))
}

func TestTransitionAccessDenied(t *testing.T) {
	s := store.NewMemoryStore()
	authz := workspaceAuthorizer(map[string][]string{"alice": {"ws-1"}, "mallory": {"ws-9"}})
	tr := NewTransitioner(s, authz, nil, zap.NewNop(), Config{})
	ctx := context.Background()
	id := seedIssue(t, s)

	_, err := tr.Apply(ctx, model.TransitionRequest{IssueID: id, UserID: "mallory", Action: model.ActionDismiss})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	issue, err := s.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, issue.Status)

	_, err = tr.Apply(ctx, model.TransitionRequest{IssueID: id, UserID: "alice", Action: model.ActionDismiss})
	assert.NoError(t, err)
}

func TestTransitionAuthorizerError(t *testing.T) {
	s := store.NewMemoryStore()
	boom := errors.New("directory unavailable")
	authz := AuthorizerFunc(func(context.Context, string, string) (bool, error) { return false, boom })
	tr := NewTransitioner(s, authz, nil, zap.NewNop(), Config{})
	id := seedIssue(t, s)

	_, err := tr.Apply(context.Background(), model.TransitionRequest{IssueID: id, UserID: "alice", Action: model.ActionResolve})
	assert.ErrorIs(t, err, boom)
}

func TestTransitionRequiresIdentity(t *testing.T) {
	tr := NewTransitioner(store.NewMemoryStore(), AllowAll, nil, zap.NewNop(), Config{})
	ctx := context.Background()

	_, err := tr.Apply(ctx, model.TransitionRequest{UserID: "alice", Action: model.ActionResolve})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = tr.Apply(ctx, model.TransitionRequest{IssueID: "x", Action: model.ActionResolve})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestTransitionRetriesRevisionConflict(t *testing.T) {
	base := store.NewMemoryStore()
	s := &faultyStore{IssueStore: base}
	tr := NewTransitioner(s, AllowAll, nil, zap.NewNop(), Config{})
	id := seedIssue(t, base)

	s.updateConflicts = 1
	issue, err := tr.Apply(context.Background(), model.TransitionRequest{IssueID: id, UserID: "alice", Action: model.ActionResolve})
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, issue.Status)

	history, err := base.ListHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
