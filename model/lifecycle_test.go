package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Automated(t *testing.T) {
	assert.True(t, CanTransition(StatusResolved, StatusReopened, true))

	for _, from := range []Status{StatusOpen, StatusInProgress, StatusReopened, StatusDismissed} {
		assert.False(t, CanTransition(from, StatusReopened, true), "from %s", from)
	}
	assert.False(t, CanTransition(StatusDismissed, StatusOpen, true))
}

func TestCanTransition_Manual(t *testing.T) {
	allowed := [][2]Status{
		{StatusOpen, StatusInProgress},
		{StatusInProgress, StatusOpen},
		{StatusOpen, StatusResolved},
		{StatusInProgress, StatusDismissed},
		{StatusReopened, StatusResolved},
		{StatusResolved, StatusDismissed},
		{StatusResolved, StatusOpen},
		{StatusDismissed, StatusOpen},
	}
	for _, e := range allowed {
		assert.True(t, CanTransition(e[0], e[1], false), "%s -> %s", e[0], e[1])
	}

	denied := [][2]Status{
		{StatusOpen, StatusOpen},
		{StatusOpen, StatusReopened},
		{StatusDismissed, StatusResolved},
		{StatusDismissed, StatusDismissed},
		{StatusResolved, StatusResolved},
	}
	for _, e := range denied {
		assert.False(t, CanTransition(e[0], e[1], false), "%s -> %s", e[0], e[1])
	}
}

func TestActionTarget(t *testing.T) {
	tests := map[Action]Status{
		ActionResolve: StatusResolved,
		ActionDismiss: StatusDismissed,
		ActionReopen:  StatusOpen,
		ActionStart:   StatusInProgress,
		ActionStop:    StatusOpen,
	}
	for action, want := range tests {
		got, err := action.Target()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := Action("archive").Target()
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestIssueUpdateApply(t *testing.T) {
	issue := &Issue{Status: StatusResolved, Confidence: 70, Priority: 2, Revision: 3}
	status := StatusReopened
	conf := 85
	check := "check-2"
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	IssueUpdate{Status: &status, Confidence: &conf, LastConfirmedCheckID: &check, UpdatedAt: now}.Apply(issue)

	assert.Equal(t, StatusReopened, issue.Status)
	assert.Equal(t, 85, issue.Confidence)
	assert.Equal(t, 2, issue.Priority)
	assert.Equal(t, "check-2", issue.LastConfirmedCheckID)
	assert.Equal(t, now, issue.UpdatedAt)
	assert.EqualValues(t, 4, issue.Revision)
}

func TestFindingConfidence(t *testing.T) {
	assert.Equal(t, DefaultConfidence, Finding{}.EffectiveConfidence())

	high := 140
	assert.Equal(t, 100, Finding{Confidence: &high}.EffectiveConfidence())
	low := -3
	assert.Equal(t, 0, Finding{Confidence: &low}.EffectiveConfidence())
}

func TestFindingValidate(t *testing.T) {
	assert.NoError(t, Finding{Severity: SeverityHigh, Title: "x"}.Validate())
	assert.ErrorIs(t, Finding{Severity: "urgent", Title: "x"}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, Finding{Severity: SeverityLow, Title: "  "}.Validate(), ErrInvalidInput)
}

func TestActiveFingerprint(t *testing.T) {
	issue := &Issue{Fingerprint: "00000000e89bd5b8", IsActive: true}
	assert.Equal(t, "00000000e89bd5b8", issue.ActiveFingerprint())
	issue.IsActive = false
	assert.Empty(t, issue.ActiveFingerprint())
}

func TestRunSummaryAdd(t *testing.T) {
	var s RunSummary
	for _, o := range []Outcome{OutcomeCreated, OutcomeUpdated, OutcomeUpdated, OutcomeReopened, OutcomeDismissedConfirmed, OutcomeFailed} {
		s.Add(ReconcileResult{Status: o})
	}
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 2, s.Updated)
	assert.Equal(t, 1, s.Reopened)
	assert.Equal(t, 1, s.DismissedConfirmed)
	assert.Equal(t, 1, s.Failed)
}
