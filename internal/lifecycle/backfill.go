package lifecycle

import (
	"context"
	"errors"

	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/util"
	"go.uber.org/zap"
)

// DefaultBackfillBatch is the page size used when none is given.
const DefaultBackfillBatch = 500

// Backfiller assigns fingerprints to issues created before fingerprinting
// existed. Running it again is harmless: issues that already carry a
// fingerprint are never listed or touched.
type Backfiller struct {
	store     store.IssueStore
	algorithm string
	logger    *zap.Logger
}

// NewBackfiller builds a Backfiller that fingerprints with the same
// algorithm as the reconciler.
func NewBackfiller(s store.IssueStore, logger *zap.Logger, cfg Config) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{store: s, algorithm: cfg.withDefaults().Algorithm, logger: logger}
}

// Run processes unfingerprinted issues oldest first until none remain. When
// two legacy issues of one document and framework hash to the same
// fingerprint, the oldest stays active and the others are stored inactive
// with superseded_by pointing at it.
func (b *Backfiller) Run(ctx context.Context, batchSize int) (model.BackfillReport, error) {
	var report model.BackfillReport
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatch
	}

	failed := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := b.store.ListUnfingerprinted(ctx, batchSize+len(failed))
		if err != nil {
			return report, err
		}

		progressed := false
		for i := range batch {
			issue := &batch[i]
			if _, seen := failed[issue.ID]; seen {
				continue
			}
			progressed = true
			report.Scanned++

			if err := b.backfillOne(ctx, issue, &report); err != nil {
				failed[issue.ID] = struct{}{}
				report.Failed++
				b.logger.Error("Failed to backfill fingerprint",
					zap.String("issue_id", issue.ID),
					zap.String("document_id", issue.DocumentID),
					zap.Error(err))
			}
		}

		if !progressed {
			break
		}
	}

	b.logger.Info("Fingerprint backfill complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("assigned", report.Assigned),
		zap.Int("superseded", report.Superseded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (b *Backfiller) backfillOne(ctx context.Context, issue *model.Issue, report *model.BackfillReport) error {
	fingerprint, err := util.FingerprintWith(b.algorithm, issueInput(issue))
	if err != nil {
		return err
	}

	// A second attempt covers a twin that became active between the lookup
	// and the write.
	for attempt := 0; attempt < 2; attempt++ {
		var supersededBy *string
		active, err := b.store.FindActiveByFingerprint(ctx, issue.DocumentID, issue.Framework, fingerprint)
		if err != nil {
			return err
		}
		if active != nil && active.ID != issue.ID {
			id := active.ID
			supersededBy = &id
		}

		assigned, err := b.store.AssignFingerprint(ctx, issue.ID, fingerprint, supersededBy)
		if errors.Is(err, model.ErrDuplicateActive) {
			continue
		}
		if err != nil {
			return err
		}

		switch {
		case !assigned:
			report.Skipped++
		case supersededBy != nil:
			report.Superseded++
			b.logger.Info("Backfilled issue superseded",
				zap.String("issue_id", issue.ID),
				zap.String("superseded_by", *supersededBy),
				zap.String("fingerprint", fingerprint),
				zap.String("reason", model.ReasonBackfillSuperseded))
		default:
			report.Assigned++
		}
		return nil
	}
	return model.ErrDuplicateActive
}
