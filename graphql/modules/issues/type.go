// Package issues defines the GraphQL types and queries for compliance issues.
package issues

import (
	"github.com/graphql-go/graphql"
)

// IssueType represents a deduplicated compliance issue
var IssueType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Issue",
	Fields: graphql.Fields{
		"id":                      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"document_id":             &graphql.Field{Type: graphql.String},
		"workspace_id":            &graphql.Field{Type: graphql.String},
		"framework":               &graphql.Field{Type: graphql.String},
		"fingerprint":             &graphql.Field{Type: graphql.String},
		"severity":                &graphql.Field{Type: graphql.String},
		"category":                &graphql.Field{Type: graphql.String},
		"title":                   &graphql.Field{Type: graphql.String},
		"description":             &graphql.Field{Type: graphql.String},
		"recommendation":          &graphql.Field{Type: graphql.String},
		"excerpt":                 &graphql.Field{Type: graphql.String},
		"confidence":              &graphql.Field{Type: graphql.Int},
		"priority":                &graphql.Field{Type: graphql.Int},
		"status":                  &graphql.Field{Type: graphql.String},
		"assigned_to":             &graphql.Field{Type: graphql.String},
		"resolved_at":             &graphql.Field{Type: graphql.DateTime},
		"resolved_by":             &graphql.Field{Type: graphql.String},
		"resolution_notes":        &graphql.Field{Type: graphql.String},
		"is_active":               &graphql.Field{Type: graphql.Boolean},
		"superseded_by":           &graphql.Field{Type: graphql.String},
		"first_detected_check_id": &graphql.Field{Type: graphql.String},
		"last_confirmed_check_id": &graphql.Field{Type: graphql.String},
		"revision":                &graphql.Field{Type: graphql.Int},
		"created_at":              &graphql.Field{Type: graphql.DateTime},
		"updated_at":              &graphql.Field{Type: graphql.DateTime},
	},
})

// StatusHistoryEntryType represents one row of an issue's audit trail
var StatusHistoryEntryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StatusHistoryEntry",
	Fields: graphql.Fields{
		"id":         &graphql.Field{Type: graphql.String},
		"issue_id":   &graphql.Field{Type: graphql.String},
		"sequence":   &graphql.Field{Type: graphql.Int},
		"old_status": &graphql.Field{Type: graphql.String},
		"new_status": &graphql.Field{Type: graphql.String},
		"changed_by": &graphql.Field{Type: graphql.String},
		"reason":     &graphql.Field{Type: graphql.String},
		"changed_at": &graphql.Field{Type: graphql.DateTime},
	},
})
