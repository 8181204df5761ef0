package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/complyhq/issues-backend/v2/model"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore persists issues in a relational SQLite database. A partial
// unique index enforces the single active issue per fingerprint, and
// triggers reject any update or delete on the history table.
type SQLiteStore struct {
	db *sql.DB
}

const issueColumns = `id, document_id, workspace_id, framework, fingerprint, severity, category, title,
	description, recommendation, excerpt, confidence, priority, status, assigned_to, resolved_at,
	resolved_by, resolution_notes, is_active, superseded_by, check_id, first_detected_check_id,
	last_confirmed_check_id, revision, created_at, updated_at`

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	// _txlock=immediate takes the write lock at BEGIN so read-modify-write
	// transactions serialize instead of failing at commit.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS issues (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL DEFAULT '',
			framework TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			recommendation TEXT NOT NULL DEFAULT '',
			excerpt TEXT NOT NULL DEFAULT '',
			confidence INTEGER NOT NULL DEFAULT 70,
			priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			assigned_to TEXT,
			resolved_at DATETIME,
			resolved_by TEXT,
			resolution_notes TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			superseded_by TEXT,
			check_id TEXT NOT NULL DEFAULT '',
			first_detected_check_id TEXT NOT NULL DEFAULT '',
			last_confirmed_check_id TEXT NOT NULL DEFAULT '',
			revision INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_issues_active_fingerprint
			ON issues(document_id, framework, fingerprint)
			WHERE is_active = 1 AND fingerprint != '';
		CREATE INDEX IF NOT EXISTS idx_issues_scope ON issues(document_id, framework);
		CREATE INDEX IF NOT EXISTS idx_issues_workspace ON issues(workspace_id);
		CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);

		CREATE TABLE IF NOT EXISTS issue_status_history (
			id TEXT PRIMARY KEY,
			issue_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			old_status TEXT NOT NULL,
			new_status TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			changed_at DATETIME NOT NULL,
			FOREIGN KEY (issue_id) REFERENCES issues(id)
		);

		CREATE INDEX IF NOT EXISTS idx_history_issue ON issue_status_history(issue_id, sequence);

		CREATE TRIGGER IF NOT EXISTS issue_status_history_no_update
			BEFORE UPDATE ON issue_status_history
			BEGIN SELECT RAISE(ABORT, 'issue_status_history is append-only'); END;

		CREATE TRIGGER IF NOT EXISTS issue_status_history_no_delete
			BEFORE DELETE ON issue_status_history
			BEGIN SELECT RAISE(ABORT, 'issue_status_history is append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*model.Issue, error) {
	var issue model.Issue
	var severity, status string
	var assignedTo, resolvedBy, notes, supersededBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&issue.ID, &issue.DocumentID, &issue.WorkspaceID, &issue.Framework, &issue.Fingerprint,
		&severity, &issue.Category, &issue.Title, &issue.Description, &issue.Recommendation, &issue.Excerpt,
		&issue.Confidence, &issue.Priority, &status, &assignedTo, &resolvedAt, &resolvedBy, &notes,
		&issue.IsActive, &supersededBy, &issue.CheckID, &issue.FirstDetectedCheckID, &issue.LastConfirmedCheckID,
		&issue.Revision, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return nil, err
	}

	issue.Severity = model.Severity(severity)
	issue.Status = model.Status(status)
	issue.AssignedTo = fromNullString(assignedTo)
	issue.ResolvedBy = fromNullString(resolvedBy)
	issue.ResolutionNotes = fromNullString(notes)
	issue.SupersededBy = fromNullString(supersededBy)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		issue.ResolvedAt = &t
	}
	return &issue, nil
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// FindActiveByFingerprint implements IssueStore.
func (s *SQLiteStore) FindActiveByFingerprint(ctx context.Context, documentID, framework, fingerprint string) (*model.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues
		WHERE document_id = ? AND framework = ? AND fingerprint = ? AND is_active = 1
		LIMIT 1`, documentID, framework, fingerprint)

	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active issue: %w", err)
	}
	return issue, nil
}

// GetIssue implements IssueStore.
func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	return getIssue(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getIssue(ctx context.Context, q queryRower, id string) (*model.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// InsertIssue implements IssueStore.
func (s *SQLiteStore) InsertIssue(ctx context.Context, issue *model.Issue) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.DocumentID, issue.WorkspaceID, issue.Framework, issue.Fingerprint,
		string(issue.Severity), issue.Category, issue.Title, issue.Description, issue.Recommendation, issue.Excerpt,
		issue.Confidence, issue.Priority, string(issue.Status), issue.AssignedTo, issue.ResolvedAt,
		issue.ResolvedBy, issue.ResolutionNotes, issue.IsActive, issue.SupersededBy, issue.CheckID,
		issue.FirstDetectedCheckID, issue.LastConfirmedCheckID, issue.Revision, issue.CreatedAt, issue.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", model.ErrDuplicateActive, issue.Key())
		}
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

// UpdateIssue implements IssueStore.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, expectedRevision int64, update model.IssueUpdate, entry *model.StatusHistoryEntry) (*model.Issue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := getIssue(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if issue.Revision != expectedRevision {
		return nil, fmt.Errorf("%w: %s at revision %d, expected %d", model.ErrRevisionConflict, id, issue.Revision, expectedRevision)
	}
	update.Apply(issue)

	res, err := tx.ExecContext(ctx, `UPDATE issues SET
			status = ?, confidence = ?, priority = ?, last_confirmed_check_id = ?, assigned_to = ?,
			resolved_at = ?, resolved_by = ?, resolution_notes = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?`,
		string(issue.Status), issue.Confidence, issue.Priority, issue.LastConfirmedCheckID, issue.AssignedTo,
		issue.ResolvedAt, issue.ResolvedBy, issue.ResolutionNotes, issue.Revision, issue.UpdatedAt,
		id, expectedRevision)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("%w: %s", model.ErrRevisionConflict, id)
	}

	if entry != nil {
		e := *entry
		e.IssueID = id
		e.Sequence = issue.Revision
		if err := insertHistory(ctx, tx, &e); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return issue, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHistory(ctx context.Context, ex execer, e *model.StatusHistoryEntry) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO issue_status_history
			(id, issue_id, sequence, old_status, new_status, changed_by, reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.IssueID, e.Sequence, string(e.OldStatus), string(e.NewStatus), e.ChangedBy, e.Reason, e.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

// Ping implements IssueStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListHistory implements IssueStore.
func (s *SQLiteStore) ListHistory(ctx context.Context, issueID string) ([]model.StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, sequence, old_status, new_status, changed_by, reason, changed_at
		FROM issue_status_history
		WHERE issue_id = ?
		ORDER BY sequence ASC, changed_at ASC, rowid ASC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	var entries []model.StatusHistoryEntry
	for rows.Next() {
		var e model.StatusHistoryEntry
		var oldStatus, newStatus string
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Sequence, &oldStatus, &newStatus, &e.ChangedBy, &e.Reason, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.OldStatus = model.Status(oldStatus)
		e.NewStatus = model.Status(newStatus)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListIssues implements IssueStore.
func (s *SQLiteStore) ListIssues(ctx context.Context, filter model.IssueFilter) ([]model.Issue, error) {
	var where []string
	var args []any
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.WorkspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.Framework != "" {
		where = append(where, "framework = ?")
		args = append(args, filter.Framework)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryIssues(ctx, query, args...)
}

func (s *SQLiteStore) queryIssues(ctx context.Context, query string, args ...any) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// ListUnfingerprinted implements IssueStore.
func (s *SQLiteStore) ListUnfingerprinted(ctx context.Context, limit int) ([]model.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE fingerprint = '' ORDER BY created_at ASC, rowid ASC`
	if limit > 0 {
		return s.queryIssues(ctx, query+" LIMIT ?", limit)
	}
	return s.queryIssues(ctx, query)
}

// AssignFingerprint implements IssueStore.
func (s *SQLiteStore) AssignFingerprint(ctx context.Context, id, fingerprint string, supersededBy *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE issues SET
			fingerprint = ?,
			is_active = ?,
			superseded_by = ?,
			first_detected_check_id = CASE WHEN first_detected_check_id = '' THEN check_id ELSE first_detected_check_id END,
			last_confirmed_check_id = CASE WHEN last_confirmed_check_id = '' THEN check_id ELSE last_confirmed_check_id END
		WHERE id = ? AND fingerprint = ''`,
		fingerprint, supersededBy == nil, supersededBy, id)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: %s", model.ErrDuplicateActive, id)
		}
		return false, fmt.Errorf("failed to assign fingerprint: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.GetIssue(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

var _ IssueStore = (*SQLiteStore)(nil)
