package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/arangodb/shared"
	"github.com/complyhq/issues-backend/v2/database"
	"github.com/complyhq/issues-backend/v2/model"
)

// ArangoStore persists issues in ArangoDB. The sparse unique index on
// [document_id, framework, active_fingerprint] created by
// database.InitializeDatabase enforces the single active issue per key.
type ArangoStore struct {
	db database.DBConnection
}

// NewArangoStore wraps an initialized database connection.
func NewArangoStore(db database.DBConnection) *ArangoStore {
	return &ArangoStore{db: db}
}

// issueDocument is the stored shape of an issue. ActiveFP mirrors the
// fingerprint while the issue is active and is null otherwise.
type issueDocument struct {
	Key string `json:"_key"`
	model.Issue
	ActiveFP *string `json:"active_fingerprint"`
}

type historyDocument struct {
	Key string `json:"_key"`
	model.StatusHistoryEntry
}

func toIssueDocument(issue *model.Issue) issueDocument {
	doc := issueDocument{Key: issue.ID, Issue: *issue}
	if fp := issue.ActiveFingerprint(); fp != "" {
		doc.ActiveFP = &fp
	}
	return doc
}

func (d issueDocument) toIssue() *model.Issue {
	issue := d.Issue
	if issue.ID == "" {
		issue.ID = d.Key
	}
	return &issue
}

func (s *ArangoStore) queryIssues(ctx context.Context, query string, bindVars map[string]interface{}) ([]model.Issue, error) {
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var issues []model.Issue
	for cursor.HasMore() {
		var doc issueDocument
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, err
		}
		issues = append(issues, *doc.toIssue())
	}
	return issues, nil
}

// FindActiveByFingerprint implements IssueStore.
func (s *ArangoStore) FindActiveByFingerprint(ctx context.Context, documentID, framework, fingerprint string) (*model.Issue, error) {
	query := `
		FOR i IN issues
			FILTER i.document_id == @document_id
			   AND i.framework == @framework
			   AND i.active_fingerprint == @fingerprint
			LIMIT 1
			RETURN i
	`
	issues, err := s.queryIssues(ctx, query, map[string]interface{}{
		"document_id": documentID,
		"framework":   framework,
		"fingerprint": fingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find active issue: %w", err)
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return &issues[0], nil
}

// GetIssue implements IssueStore.
func (s *ArangoStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	var doc issueDocument
	if _, err := s.db.Collections[database.IssuesCollection].ReadDocument(ctx, id, &doc); err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return doc.toIssue(), nil
}

// InsertIssue implements IssueStore.
func (s *ArangoStore) InsertIssue(ctx context.Context, issue *model.Issue) error {
	if _, err := s.db.Collections[database.IssuesCollection].CreateDocument(ctx, toIssueDocument(issue)); err != nil {
		if shared.IsConflict(err) {
			return fmt.Errorf("%w: %s", model.ErrDuplicateActive, issue.Key())
		}
		return fmt.Errorf("failed to save issue: %w", err)
	}
	return nil
}

// UpdateIssue implements IssueStore. The conditional update and the history
// insert run as one AQL query, which ArangoDB executes atomically.
func (s *ArangoStore) UpdateIssue(ctx context.Context, id string, expectedRevision int64, update model.IssueUpdate, entry *model.StatusHistoryEntry) (*model.Issue, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Revision != expectedRevision {
		return nil, fmt.Errorf("%w: %s at revision %d, expected %d", model.ErrRevisionConflict, id, issue.Revision, expectedRevision)
	}
	update.Apply(issue)

	bindVars := map[string]interface{}{
		"key":      id,
		"expected": expectedRevision,
		"patch": map[string]interface{}{
			"status":                  issue.Status,
			"confidence":              issue.Confidence,
			"priority":                issue.Priority,
			"last_confirmed_check_id": issue.LastConfirmedCheckID,
			"assigned_to":             issue.AssignedTo,
			"resolved_at":             issue.ResolvedAt,
			"resolved_by":             issue.ResolvedBy,
			"resolution_notes":        issue.ResolutionNotes,
			"revision":                issue.Revision,
			"updated_at":              issue.UpdatedAt,
		},
	}

	query := `
		LET updated = (
			FOR doc IN issues
				FILTER doc._key == @key AND doc.revision == @expected
				UPDATE doc WITH @patch IN issues
				RETURN NEW._key
		)
	`
	if entry != nil {
		e := *entry
		e.IssueID = id
		e.Sequence = issue.Revision
		bindVars["entry"] = historyDocument{Key: e.ID, StatusHistoryEntry: e}
		query += `
		LET logged = (
			FOR u IN updated
				INSERT @entry INTO issue_status_history
				RETURN NEW._key
		)
		`
	}
	query += `RETURN LENGTH(updated)`

	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	defer cursor.Close()

	var n int
	if cursor.HasMore() {
		if _, err := cursor.ReadDocument(ctx, &n); err != nil {
			return nil, err
		}
	}
	if n != 1 {
		return nil, fmt.Errorf("%w: %s", model.ErrRevisionConflict, id)
	}
	return issue, nil
}

// Ping implements IssueStore by running a trivial query.
func (s *ArangoStore) Ping(ctx context.Context) error {
	cursor, err := s.db.Database.Query(ctx, "RETURN 1", &arangodb.QueryOptions{})
	if err != nil {
		return fmt.Errorf("arangodb unreachable: %w", err)
	}
	return cursor.Close()
}

// ListHistory implements IssueStore.
func (s *ArangoStore) ListHistory(ctx context.Context, issueID string) ([]model.StatusHistoryEntry, error) {
	query := `
		FOR h IN issue_status_history
			FILTER h.issue_id == @issue_id
			SORT h.sequence ASC, h.changed_at ASC
			RETURN h
	`
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"issue_id": issueID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer cursor.Close()

	var entries []model.StatusHistoryEntry
	for cursor.HasMore() {
		var doc historyDocument
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, err
		}
		entries = append(entries, doc.StatusHistoryEntry)
	}
	return entries, nil
}

// ListIssues implements IssueStore.
func (s *ArangoStore) ListIssues(ctx context.Context, filter model.IssueFilter) ([]model.Issue, error) {
	var filters []string
	bindVars := map[string]interface{}{}

	if filter.DocumentID != "" {
		filters = append(filters, "i.document_id == @document_id")
		bindVars["document_id"] = filter.DocumentID
	}
	if filter.WorkspaceID != "" {
		filters = append(filters, "i.workspace_id == @workspace_id")
		bindVars["workspace_id"] = filter.WorkspaceID
	}
	if filter.Framework != "" {
		filters = append(filters, "i.framework == @framework")
		bindVars["framework"] = filter.Framework
	}
	if filter.Status != "" {
		filters = append(filters, "i.status == @status")
		bindVars["status"] = string(filter.Status)
	}
	if filter.ActiveOnly {
		filters = append(filters, "i.is_active == true")
	}

	var b strings.Builder
	b.WriteString("FOR i IN issues\n")
	if len(filters) > 0 {
		b.WriteString("\tFILTER " + strings.Join(filters, " AND ") + "\n")
	}
	b.WriteString("\tSORT i.created_at ASC\n")
	if filter.Limit > 0 {
		b.WriteString("\tLIMIT @limit\n")
		bindVars["limit"] = filter.Limit
	}
	b.WriteString("\tRETURN i")

	issues, err := s.queryIssues(ctx, b.String(), bindVars)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// ListUnfingerprinted implements IssueStore.
func (s *ArangoStore) ListUnfingerprinted(ctx context.Context, limit int) ([]model.Issue, error) {
	query := `
		FOR i IN issues
			FILTER i.fingerprint == null OR i.fingerprint == ""
			SORT i.created_at ASC
			LIMIT @limit
			RETURN i
	`
	if limit <= 0 {
		limit = 1000
	}
	issues, err := s.queryIssues(ctx, query, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list unfingerprinted issues: %w", err)
	}
	return issues, nil
}

// AssignFingerprint implements IssueStore.
func (s *ArangoStore) AssignFingerprint(ctx context.Context, id, fingerprint string, supersededBy *string) (bool, error) {
	var active interface{}
	if supersededBy == nil {
		active = fingerprint
	}

	query := `
		FOR i IN issues
			FILTER i._key == @key AND (i.fingerprint == null OR i.fingerprint == "")
			UPDATE i WITH {
				fingerprint: @fingerprint,
				active_fingerprint: @active,
				is_active: @is_active,
				superseded_by: @superseded_by,
				first_detected_check_id: (i.first_detected_check_id == null OR i.first_detected_check_id == "") ? i.check_id : i.first_detected_check_id,
				last_confirmed_check_id: (i.last_confirmed_check_id == null OR i.last_confirmed_check_id == "") ? i.check_id : i.last_confirmed_check_id
			} IN issues
			RETURN NEW._key
	`
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"key":           id,
			"fingerprint":   fingerprint,
			"active":        active,
			"is_active":     supersededBy == nil,
			"superseded_by": supersededBy,
		},
	})
	if err != nil {
		if shared.IsConflict(err) {
			return false, fmt.Errorf("%w: %s", model.ErrDuplicateActive, id)
		}
		return false, fmt.Errorf("failed to assign fingerprint: %w", err)
	}
	defer cursor.Close()

	if cursor.HasMore() {
		return true, nil
	}
	if _, err := s.GetIssue(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Close implements IssueStore. The connection is owned by the caller.
func (s *ArangoStore) Close() error { return nil }

var _ IssueStore = (*ArangoStore)(nil)
