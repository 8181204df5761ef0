package issues

import (
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/graphql-go/graphql"
)

// GetQueryFields returns the issue queries to be mounted in the root schema
func GetQueryFields(s store.IssueStore) graphql.Fields {
	return graphql.Fields{
		"issues": &graphql.Field{
			Type: graphql.NewList(IssueType),
			Args: graphql.FieldConfigArgument{
				"document_id":  &graphql.ArgumentConfig{Type: graphql.String},
				"workspace_id": &graphql.ArgumentConfig{Type: graphql.String},
				"framework":    &graphql.ArgumentConfig{Type: graphql.String},
				"status":       &graphql.ArgumentConfig{Type: graphql.String},
				"active":       &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				"limit":        &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveIssues(p.Context, s, p.Args)
			},
		},
		"issue": &graphql.Field{
			Type: IssueType,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				id := p.Args["id"].(string)
				return ResolveIssue(p.Context, s, id)
			},
		},
		"issueHistory": &graphql.Field{
			Type: graphql.NewList(StatusHistoryEntryType),
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				id := p.Args["id"].(string)
				return ResolveIssueHistory(p.Context, s, id)
			},
		},
	}
}
