package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reconciler matches findings from a compliance run against the active
// issues of the same document and framework.
type Reconciler struct {
	store    store.IssueStore
	emitter  Emitter
	recorder OutcomeRecorder
	logger   *zap.Logger
	cfg      Config
	locks    *keyLock
	now      func() time.Time
}

// NewReconciler builds a Reconciler. A nil emitter discards events.
func NewReconciler(s store.IssueStore, emitter Emitter, logger *zap.Logger, cfg Config) *Reconciler {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    s,
		emitter:  emitter,
		recorder: nopRecorder{},
		logger:   logger,
		cfg:      cfg.withDefaults(),
		locks:    newKeyLock(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetRecorder makes the reconciler report outcomes to rec.
func (r *Reconciler) SetRecorder(rec OutcomeRecorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	r.recorder = rec
}

// Fingerprint computes the identity of a finding with the configured algorithm.
func (r *Reconciler) Fingerprint(f model.Finding) (string, error) {
	return util.FingerprintWith(r.cfg.Algorithm, findingInput(f))
}

// Reconcile applies one finding to the store. Storage races are retried;
// any other failure is returned together with a failed result.
func (r *Reconciler) Reconcile(ctx context.Context, finding model.Finding, fingerprint string, scope model.Scope) (model.ReconcileResult, error) {
	result := model.ReconcileResult{Fingerprint: fingerprint, Status: model.OutcomeFailed}

	if err := scope.Validate(); err != nil {
		result.Error = err.Error()
		return result, err
	}
	if err := finding.Validate(); err != nil {
		result.Error = err.Error()
		return result, err
	}
	if fingerprint == "" {
		err := fmt.Errorf("%w: fingerprint is required", model.ErrInvalidInput)
		result.Error = err.Error()
		return result, err
	}

	priority := util.ResolvePriority(scope.Priority, finding.Severity, finding.EffectiveConfidence())
	key := model.FingerprintKey{DocumentID: scope.DocumentID, Framework: scope.Framework, Fingerprint: fingerprint}

	unlock := r.locks.Lock(key.String())
	defer unlock()

	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		res, err := r.reconcileOnce(ctx, finding, key, scope, priority)
		if err == nil {
			result = res
			return nil
		}
		if model.IsRetryable(err) {
			r.logger.Debug("Retrying reconciliation after storage race",
				zap.String("fingerprint", fingerprint),
				zap.String("document_id", scope.DocumentID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(retryPolicy(r.cfg.MaxRetries), ctx)); err != nil {
		result.Status = model.OutcomeFailed
		result.Error = err.Error()
		r.logger.Error("Failed to reconcile finding",
			zap.String("document_id", scope.DocumentID),
			zap.String("framework", scope.Framework),
			zap.String("check_id", scope.CheckID),
			zap.String("fingerprint", fingerprint),
			zap.Error(err))
		return result, err
	}
	return result, nil
}

// reconcileOnce is a single lookup-decide-write attempt. A lost race surfaces
// as ErrDuplicateActive or ErrRevisionConflict; the caller re-runs the whole
// decision, so a lost insert becomes an update of the winner's row.
func (r *Reconciler) reconcileOnce(ctx context.Context, finding model.Finding, key model.FingerprintKey, scope model.Scope, priority int) (model.ReconcileResult, error) {
	result := model.ReconcileResult{Fingerprint: key.Fingerprint}

	existing, err := r.store.FindActiveByFingerprint(ctx, key.DocumentID, key.Framework, key.Fingerprint)
	if err != nil {
		return result, err
	}
	now := r.now()

	if existing == nil {
		issue := model.NewIssue(newID(), scope, finding, key.Fingerprint, priority, now)
		if err := r.store.InsertIssue(ctx, issue); err != nil {
			return result, err
		}
		r.logger.Info("Created issue",
			zap.String("issue_id", issue.ID),
			zap.String("document_id", issue.DocumentID),
			zap.String("framework", issue.Framework),
			zap.String("fingerprint", issue.Fingerprint),
			zap.String("check_id", scope.CheckID))
		result.IssueID = issue.ID
		result.IsNew = true
		result.Status = model.OutcomeCreated
		return result, nil
	}

	result.IssueID = existing.ID
	confidence := finding.EffectiveConfidence()
	checkID := scope.CheckID
	update := model.IssueUpdate{
		Confidence:           &confidence,
		Priority:             &priority,
		LastConfirmedCheckID: &checkID,
		UpdatedAt:            now,
	}

	var entry *model.StatusHistoryEntry
	switch {
	case existing.Status == model.StatusResolved && model.CanTransition(existing.Status, model.StatusReopened, true):
		reopened := model.StatusReopened
		update.Status = &reopened
		entry = &model.StatusHistoryEntry{
			ID:        newID(),
			OldStatus: model.StatusResolved,
			NewStatus: model.StatusReopened,
			ChangedBy: model.SystemActor,
			Reason:    model.ReasonRedetected,
			ChangedAt: now,
		}
		result.Status = model.OutcomeReopened
		result.PreviousStatus = existing.Status

	case existing.Status == model.StatusDismissed:
		entry = &model.StatusHistoryEntry{
			ID:        newID(),
			OldStatus: model.StatusDismissed,
			NewStatus: model.StatusDismissed,
			ChangedBy: model.SystemActor,
			Reason:    model.ReasonStillDismissed,
			ChangedAt: now,
		}
		result.Status = model.OutcomeDismissedConfirmed
		result.PreviousStatus = existing.Status

	default:
		result.Status = model.OutcomeUpdated
	}

	updated, err := r.store.UpdateIssue(ctx, existing.ID, existing.Revision, update, entry)
	if err != nil {
		return result, err
	}

	if result.Status == model.OutcomeReopened {
		r.logger.Info("Reopened issue",
			zap.String("issue_id", updated.ID),
			zap.String("document_id", updated.DocumentID),
			zap.String("old_status", string(entry.OldStatus)),
			zap.String("new_status", string(entry.NewStatus)),
			zap.String("check_id", scope.CheckID))
		r.emitter.Emit(eventFor(updated, entry))
	}
	return result, nil
}

// ReconcileRun fingerprints and reconciles every finding of one run. Findings
// are independent: a failure is recorded in the summary and the rest still
// run. If ctx is cancelled, findings not yet started are reported as failed.
func (r *Reconciler) ReconcileRun(ctx context.Context, scope model.Scope, findings []model.Finding) (model.RunSummary, error) {
	summary := model.RunSummary{
		DocumentID: scope.DocumentID,
		Framework:  scope.Framework,
		CheckID:    scope.CheckID,
	}
	if err := scope.Validate(); err != nil {
		return summary, err
	}

	results := make([]model.ReconcileResult, len(findings))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	for i, finding := range findings {
		if err := ctx.Err(); err != nil {
			results[i] = model.ReconcileResult{Status: model.OutcomeFailed, Error: err.Error()}
			continue
		}
		g.Go(func() error {
			fingerprint, err := r.Fingerprint(finding)
			if err != nil {
				results[i] = model.ReconcileResult{Status: model.OutcomeFailed, Error: err.Error()}
				return nil
			}
			results[i], _ = r.Reconcile(ctx, finding, fingerprint, scope)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		summary.Add(res)
		r.recorder.ObserveOutcome(res.Status)
	}
	summary.Results = results

	r.logger.Info("Reconciled compliance run",
		zap.String("document_id", scope.DocumentID),
		zap.String("framework", scope.Framework),
		zap.String("check_id", scope.CheckID),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("reopened", summary.Reopened),
		zap.Int("dismissed_confirmed", summary.DismissedConfirmed),
		zap.Int("failed", summary.Failed))

	return summary, ctx.Err()
}
