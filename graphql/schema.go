// Package graphql assembles the root GraphQL schema from the query modules.
package graphql

import (
	"github.com/complyhq/issues-backend/v2/graphql/modules/dashboard"
	"github.com/complyhq/issues-backend/v2/graphql/modules/issues"
	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/graphql-go/graphql"
)

// CreateSchema builds the read-only schema over s.
func CreateSchema(s store.IssueStore) (graphql.Schema, error) {
	fields := graphql.Fields{}
	for _, module := range []graphql.Fields{
		issues.GetQueryFields(s),
		dashboard.GetQueryFields(s),
	} {
		for name, field := range module {
			fields[name] = field
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: fields,
		}),
	})
}
