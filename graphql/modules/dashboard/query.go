// Package dashboard defines the GraphQL queries for the dashboard.
package dashboard

import (
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/graphql-go/graphql"
)

// GetQueryFields returns the dashboard queries to be mounted in the root schema
func GetQueryFields(s store.IssueStore) graphql.Fields {
	return graphql.Fields{
		// Top cards and severity/status charts
		"dashboardOverview": &graphql.Field{
			Type: DashboardOverviewType,
			Args: graphql.FieldConfigArgument{
				"workspace_id": &graphql.ArgumentConfig{Type: graphql.String},
				"framework":    &graphql.ArgumentConfig{Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				workspaceID, _ := p.Args["workspace_id"].(string)
				framework, _ := p.Args["framework"].(string)
				return ResolveOverview(p.Context, s, workspaceID, framework)
			},
		},

		// MTTR Analysis by Severity
		"dashboardMTTR": &graphql.Field{
			Type: MTTRAnalysisType,
			Args: graphql.FieldConfigArgument{
				"days":         &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 90},
				"workspace_id": &graphql.ArgumentConfig{Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				days := p.Args["days"].(int)
				workspaceID, _ := p.Args["workspace_id"].(string)
				return ResolveMTTR(p.Context, s, workspaceID, days)
			},
		},
	}
}
