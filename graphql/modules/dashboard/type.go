// Package dashboard defines the GraphQL types for the issue dashboard.
package dashboard

import (
	"github.com/graphql-go/graphql"
)

// SeverityDistributionType represents the data for the pie/bar charts
var SeverityDistributionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SeverityDistribution",
	Fields: graphql.Fields{
		"critical": &graphql.Field{Type: graphql.Int},
		"high":     &graphql.Field{Type: graphql.Int},
		"medium":   &graphql.Field{Type: graphql.Int},
		"low":      &graphql.Field{Type: graphql.Int},
		"info":     &graphql.Field{Type: graphql.Int},
	},
})

// StatusDistributionType counts issues per lifecycle state
var StatusDistributionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StatusDistribution",
	Fields: graphql.Fields{
		"open":        &graphql.Field{Type: graphql.Int},
		"in_progress": &graphql.Field{Type: graphql.Int},
		"reopened":    &graphql.Field{Type: graphql.Int},
		"resolved":    &graphql.Field{Type: graphql.Int},
		"dismissed":   &graphql.Field{Type: graphql.Int},
	},
})

// DashboardOverviewType represents the high-level metrics for the top cards
var DashboardOverviewType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DashboardOverview",
	Fields: graphql.Fields{
		"total_issues":    &graphql.Field{Type: graphql.Int},
		"open_issues":     &graphql.Field{Type: graphql.Int},
		"inactive_issues": &graphql.Field{Type: graphql.Int},
		"open_severity":   &graphql.Field{Type: SeverityDistributionType},
		"by_status":       &graphql.Field{Type: StatusDistributionType},
	},
})

// MTTRBySeverityType represents MTTR metrics for a specific severity level
var MTTRBySeverityType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MTTRBySeverity",
	Fields: graphql.Fields{
		"severity":    &graphql.Field{Type: graphql.String},
		"mean_days":   &graphql.Field{Type: graphql.Float},
		"median_days": &graphql.Field{Type: graphql.Float},
		"min_days":    &graphql.Field{Type: graphql.Float},
		"max_days":    &graphql.Field{Type: graphql.Float},
		"sample_size": &graphql.Field{Type: graphql.Int},
	},
})

// MTTRAnalysisType represents the complete MTTR analysis
var MTTRAnalysisType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MTTRAnalysis",
	Fields: graphql.Fields{
		"by_severity":       &graphql.Field{Type: graphql.NewList(MTTRBySeverityType)},
		"overall_mean_days": &graphql.Field{Type: graphql.Float},
		"analysis_period":   &graphql.Field{Type: graphql.Int},
		"total_remediated":  &graphql.Field{Type: graphql.Int},
	},
})
