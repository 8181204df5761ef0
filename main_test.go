package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
	"github.com/complyhq/issues-backend/v2/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := fingerprintCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--title", "  MFA   Missing ", "--category", "Access", "--severity", "high", "--description", "Admins lack MFA"})
	require.NoError(t, cmd.Execute())

	want := util.Fingerprint(util.FingerprintInput{Title: "mfa missing", Category: "access", Severity: "high", Description: "admins lack mfa"})
	assert.Equal(t, want, strings.TrimSpace(out.String()))
}

func TestFingerprintCommandRejectsUnknownAlgorithm(t *testing.T) {
	cmd := fingerprintCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--title", "x", "--algorithm", "md5"})
	assert.Error(t, cmd.Execute())
}

func TestReconcileCommand(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")

	scan := model.ScanResults{
		Scope: model.Scope{DocumentID: "doc-1", WorkspaceID: "ws-1", Framework: "SOC2", CheckID: "check-1"},
		Findings: []model.Finding{
			{Severity: model.SeverityHigh, Title: "MFA missing"},
			{Severity: model.SeverityHigh, Title: "mfa  MISSING"},
			{Severity: "bogus", Title: "Broken"},
		},
	}
	data, err := json.Marshal(scan)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "scan.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var out bytes.Buffer
	cmd := reconcileCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.Execute())

	var summary model.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
}

func TestReconcileCommandFromStdin(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := reconcileCmd()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(`{"document_id":"doc-1","framework":"SOC2","check_id":"c1","findings":[{"severity":"low","title":"t"}]}`))
	cmd.SetArgs([]string{"--file", "-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"created": 1`)

	cmd = reconcileCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(`{"framework":"SOC2","check_id":"c1"}`))
	cmd.SetArgs([]string{"--file", "-"})
	assert.ErrorIs(t, cmd.Execute(), model.ErrInvalidInput)
}

func TestBackfillCommand(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := backfillCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--batch-size", "10"})
	require.NoError(t, cmd.Execute())

	var report model.BackfillReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 0, report.Scanned)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	var out bytes.Buffer
	cmd := tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user", "pipeline", "--role", auth.RoleScanner, "--workspace", "ws-1"})
	require.NoError(t, cmd.Execute())

	id, err := auth.NewTokenManager("test-secret", time.Hour).ValidateJWT(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "pipeline", id.UserID)
	assert.Equal(t, auth.RoleScanner, id.Role)
	assert.Equal(t, []string{"ws-1"}, id.Workspaces)

	cmd = tokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--user", "x", "--role", "superuser"})
	assert.Error(t, cmd.Execute())
}
