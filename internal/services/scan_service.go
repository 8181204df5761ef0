// Package services provides internal service implementations for the issues backend.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/complyhq/issues-backend/v2/events/modules/scans"
	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/model"
)

// Re-run defaults used when ScanServiceWrapper leaves them zero.
const (
	DefaultScanRetries       = 5
	DefaultScanRetryInterval = 200 * time.Millisecond
)

// ErrFindingsFailed is returned when some findings of a scan could not be
// reconciled after all retries.
var ErrFindingsFailed = errors.New("findings failed to reconcile")

// ScanServiceWrapper implements scans.ScanService on top of the reconciler,
// so Kafka-driven ingestion and POST /api/v1/scans share one code path.
type ScanServiceWrapper struct {
	Reconciler    *lifecycle.Reconciler
	MaxRetries    int           // re-runs of still failing findings
	RetryInterval time.Duration // first wait between re-runs
}

// ProcessScan reconciles every finding of one completed run. Findings that
// failed for a reason other than invalid input are re-run on their own with
// backoff. If any are still failing once retries run out the summary is
// returned with ErrFindingsFailed, so the event is not acknowledged.
func (w *ScanServiceWrapper) ProcessScan(ctx context.Context, scan model.ScanResults) (model.RunSummary, error) {
	summary, err := w.Reconciler.ReconcileRun(ctx, scan.Scope, scan.Findings)
	if err != nil {
		return summary, err
	}
	if len(retryable(scan.Findings, summary.Results)) == 0 {
		return summary, nil
	}

	op := func() error {
		pending := retryable(scan.Findings, summary.Results)
		if len(pending) == 0 {
			return nil
		}
		subset := make([]model.Finding, len(pending))
		for j, i := range pending {
			subset[j] = scan.Findings[i]
		}
		retried, err := w.Reconciler.ReconcileRun(ctx, scan.Scope, subset)
		if len(retried.Results) == len(pending) {
			for j, i := range pending {
				summary.Results[i] = retried.Results[j]
			}
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		if retried.Failed > 0 {
			return fmt.Errorf("%d findings still failing", retried.Failed)
		}
		return nil
	}

	err = backoff.Retry(op, backoff.WithContext(w.retryPolicy(), ctx))
	summary.Recount()
	if err != nil {
		return summary, fmt.Errorf("%w: %d of %d after retries: %v", ErrFindingsFailed, summary.Failed, len(scan.Findings), err)
	}
	return summary, nil
}

func (w *ScanServiceWrapper) retryPolicy() backoff.BackOff {
	retries, interval := w.MaxRetries, w.RetryInterval
	if retries <= 0 {
		retries = DefaultScanRetries
	}
	if interval <= 0 {
		interval = DefaultScanRetryInterval
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	bo.MaxInterval = 20 * interval
	bo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(bo, uint64(retries))
}

// retryable lists the indexes of failed findings that could succeed on a
// re-run. Invalid findings fail the same way every time.
func retryable(findings []model.Finding, results []model.ReconcileResult) []int {
	var out []int
	for i, res := range results {
		if res.Status != model.OutcomeFailed || i >= len(findings) {
			continue
		}
		if findings[i].Validate() != nil {
			continue
		}
		out = append(out, i)
	}
	return out
}

var _ scans.ScanService = (*ScanServiceWrapper)(nil)
