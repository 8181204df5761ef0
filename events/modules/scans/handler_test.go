package scans

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/complyhq/issues-backend/v2/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScanService struct {
	got []model.ScanResults
	err error
}

func (s *fakeScanService) ProcessScan(_ context.Context, scan model.ScanResults) (model.RunSummary, error) {
	s.got = append(s.got, scan)
	return model.RunSummary{DocumentID: scan.DocumentID, Created: len(scan.Findings)}, s.err
}

func scanEvent(t *testing.T, mutate func(*ScanCompletedEvent)) []byte {
	t.Helper()
	event := ScanCompletedEvent{
		EventType:     EventTypeScanCompleted,
		EventID:       "evt-1",
		EventTime:     time.Now().UTC(),
		SchemaVersion: "v1",
		Scan: model.ScanResults{
			Scope: model.Scope{DocumentID: "doc-1", WorkspaceID: "ws-1", Framework: "SOC2", CheckID: "check-1"},
			Findings: []model.Finding{
				{Severity: model.SeverityHigh, Category: "auth", Title: "Missing MFA for admin accounts"},
			},
		},
	}
	if mutate != nil {
		mutate(&event)
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestHandleScanCompleted(t *testing.T) {
	svc := &fakeScanService{}
	summary, err := HandleScanCompleted(context.Background(), scanEvent(t, nil), svc, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	require.Len(t, svc.got, 1)
	assert.Equal(t, "check-1", svc.got[0].CheckID)
}

func TestHandleScanCompletedRejects(t *testing.T) {
	tests := []struct {
		name   string
		msg    func(t *testing.T) []byte
		errMsg string
	}{
		{name: "bad json", msg: func(*testing.T) []byte { return []byte("{") }, errMsg: "unmarshal"},
		{name: "wrong type", msg: func(t *testing.T) []byte {
			return scanEvent(t, func(e *ScanCompletedEvent) { e.EventType = "release.sbom.created" })
		}, errMsg: "event_type"},
		{name: "future schema", msg: func(t *testing.T) []byte {
			return scanEvent(t, func(e *ScanCompletedEvent) { e.SchemaVersion = "2.0.0" })
		}, errMsg: "unsupported"},
		{name: "missing schema", msg: func(t *testing.T) []byte {
			return scanEvent(t, func(e *ScanCompletedEvent) { e.SchemaVersion = "" })
		}, errMsg: "schema_version"},
		{name: "missing check", msg: func(t *testing.T) []byte {
			return scanEvent(t, func(e *ScanCompletedEvent) { e.Scan.CheckID = "" })
		}, errMsg: "check_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeScanService{}
			_, err := HandleScanCompleted(context.Background(), tt.msg(t), svc, zap.NewNop())
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Empty(t, svc.got)
		})
	}
}

func TestHandleScanCompletedServiceError(t *testing.T) {
	svc := &fakeScanService{err: errors.New("store down")}
	_, err := HandleScanCompleted(context.Background(), scanEvent(t, nil), svc, zap.NewNop())
	assert.ErrorContains(t, err, "store down")
}

func TestCheckSchemaVersion(t *testing.T) {
	for _, v := range []string{"v1", "1", "1.0.0", "1.4.2"} {
		assert.NoError(t, CheckSchemaVersion(v), v)
	}
	for _, v := range []string{"v2", "0.9.0", "not-a-version"} {
		assert.Error(t, CheckSchemaVersion(v), v)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestLifecycleProducerKeysByIssue(t *testing.T) {
	w := &fakeWriter{}
	p := &LifecycleProducer{Writer: w}

	change := model.LifecycleEvent{
		EventID:   "evt-9",
		IssueID:   "issue-1",
		OldStatus: model.StatusResolved,
		NewStatus: model.StatusReopened,
		ChangedBy: model.SystemActor,
	}
	require.NoError(t, p.Publish(context.Background(), change))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "issue-1", string(w.msgs[0].Key))

	var decoded IssueLifecycleEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, EventTypeIssueLifecycle, decoded.EventType)
	assert.Equal(t, "evt-9", decoded.EventID)
	assert.Equal(t, model.StatusReopened, decoded.Change.NewStatus)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestScanProducerRoundTrip(t *testing.T) {
	w := &fakeWriter{}
	p := &ScanProducer{Writer: w}

	scan := model.ScanResults{
		Scope:    model.Scope{DocumentID: "doc-1", Framework: "SOC2", CheckID: "check-1"},
		Findings: []model.Finding{{Severity: model.SeverityLow, Title: "Audit log retention too short"}},
	}
	require.NoError(t, p.PublishScanCompleted(context.Background(), scan))
	require.Len(t, w.msgs, 1)

	svc := &fakeScanService{}
	_, err := HandleScanCompleted(context.Background(), w.msgs[0].Value, svc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, svc.got, 1)
	assert.Equal(t, scan.Findings[0].Title, svc.got[0].Findings[0].Title)
}
