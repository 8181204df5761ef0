package scans

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/complyhq/issues-backend/v2/model"
	"go.uber.org/zap"
)

// ScanService reconciles the findings of one completed scan.
type ScanService interface {
	ProcessScan(ctx context.Context, scan model.ScanResults) (model.RunSummary, error)
}

var supportedSchema = mustConstraint(SupportedSchemaConstraint)

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// CheckSchemaVersion reports whether an event schema version can be decoded
// by this service. Both "v1" and "1.2.0" forms are accepted.
func CheckSchemaVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: schema_version is required", model.ErrInvalidInput)
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: schema_version %q: %v", model.ErrInvalidInput, v, err)
	}
	if !supportedSchema.Check(version) {
		return fmt.Errorf("%w: unsupported schema_version %s (want %s)", model.ErrInvalidInput, v, SupportedSchemaConstraint)
	}
	return nil
}

// HandleScanCompleted decodes a scan completed event and hands the scan to service.
func HandleScanCompleted(ctx context.Context, msg []byte, service ScanService, logger *zap.Logger) (model.RunSummary, error) {
	var event ScanCompletedEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return model.RunSummary{}, fmt.Errorf("%w: failed to unmarshal ScanCompletedEvent: %v", model.ErrInvalidInput, err)
	}

	if event.EventType != EventTypeScanCompleted {
		return model.RunSummary{}, fmt.Errorf("%w: unexpected event_type %q", model.ErrInvalidInput, event.EventType)
	}
	if err := CheckSchemaVersion(event.SchemaVersion); err != nil {
		return model.RunSummary{}, err
	}
	if err := event.Scan.Validate(); err != nil {
		return model.RunSummary{}, err
	}

	logger.Info("Processing completed scan",
		zap.String("event_id", event.EventID),
		zap.String("document_id", event.Scan.DocumentID),
		zap.String("framework", event.Scan.Framework),
		zap.String("check_id", event.Scan.CheckID),
		zap.Int("findings", len(event.Scan.Findings)))

	summary, err := service.ProcessScan(ctx, event.Scan)
	if err != nil {
		return summary, fmt.Errorf("internal service error: %w", err)
	}
	return summary, nil
}
