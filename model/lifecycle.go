// Package model - Issue status state machine and lifecycle events
package model

import (
	"fmt"
	"time"
)

// Action is a user-initiated lifecycle operation.
type Action string

// Action values
const (
	ActionResolve Action = "resolve"
	ActionDismiss Action = "dismiss"
	ActionReopen  Action = "reopen"
	ActionStart   Action = "start" // begin work: -> in_progress
	ActionStop    Action = "stop"  // stop work: in_progress -> open
)

// Target returns the status an action moves an issue to.
func (a Action) Target() (Status, error) {
	switch a {
	case ActionResolve:
		return StatusResolved, nil
	case ActionDismiss:
		return StatusDismissed, nil
	case ActionReopen, ActionStop:
		return StatusOpen, nil
	case ActionStart:
		return StatusInProgress, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, a)
}

// manualTransitions lists the edges a user may take.
var manualTransitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusDismissed},
	StatusInProgress: {StatusOpen, StatusResolved, StatusDismissed},
	StatusReopened:   {StatusInProgress, StatusResolved, StatusDismissed},
	StatusResolved:   {StatusOpen, StatusDismissed},
	StatusDismissed:  {StatusOpen},
}

// CanTransition reports whether a status change is allowed. Automated
// re-detection may only move resolved issues to reopened.
func CanTransition(from, to Status, automated bool) bool {
	if automated {
		return from == StatusResolved && to == StatusReopened
	}
	for _, s := range manualTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reasons recorded by automated reconciliation.
const (
	ReasonRedetected         = "detected again in new compliance check"
	ReasonStillDismissed     = "still detected but remains dismissed"
	ReasonBackfillSuperseded = "superseded by active issue with identical fingerprint during backfill"
)

// LifecycleEvent is handed to the notification collaborator on automated
// reopen and on every manual transition.
type LifecycleEvent struct {
	EventID     string    `json:"event_id"`
	IssueID     string    `json:"issue_id"`
	DocumentID  string    `json:"document_id"`
	WorkspaceID string    `json:"workspace_id"`
	Framework   string    `json:"framework"`
	OldStatus   Status    `json:"old_status"`
	NewStatus   Status    `json:"new_status"`
	ChangedBy   string    `json:"changed_by"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TransitionRequest is a user-driven status change.
type TransitionRequest struct {
	IssueID string `json:"issue_id"`
	UserID  string `json:"user_id"`
	Action  Action `json:"action"`
	Notes   string `json:"notes,omitempty"`
}
