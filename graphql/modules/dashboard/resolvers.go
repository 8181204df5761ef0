// Package dashboard implements the resolvers for issue dashboard metrics.
package dashboard

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/complyhq/issues-backend/v2/internal/store"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/complyhq/issues-backend/v2/restapi/modules/auth"
)

// scanLimit bounds how many issues one dashboard query aggregates.
const scanLimit = 100000

var severityOrder = []model.Severity{
	model.SeverityCritical,
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
	model.SeverityInfo,
}

func visibleIssues(ctx context.Context, s store.IssueStore, filter model.IssueFilter) ([]model.Issue, error) {
	var (
		id auth.Identity
		ok bool
	)
	if ctx != nil {
		id, ok = auth.IdentityFrom(ctx)
	}
	if !ok {
		return nil, errors.New("authentication required")
	}
	if filter.WorkspaceID != "" && !id.CanSee(filter.WorkspaceID) {
		return nil, model.ErrAccessDenied
	}

	filter.Limit = scanLimit
	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := issues[:0]
	for _, issue := range issues {
		if id.CanSee(issue.WorkspaceID) {
			visible = append(visible, issue)
		}
	}
	return visible, nil
}

// ResolveOverview counts issues by status and open issues by severity
func ResolveOverview(ctx context.Context, s store.IssueStore, workspaceID, framework string) (map[string]interface{}, error) {
	issues, err := visibleIssues(ctx, s, model.IssueFilter{WorkspaceID: workspaceID, Framework: framework})
	if err != nil {
		return nil, err
	}

	severity := map[string]interface{}{}
	for _, sev := range severityOrder {
		severity[string(sev)] = 0
	}
	status := map[string]interface{}{
		string(model.StatusOpen):       0,
		string(model.StatusInProgress): 0,
		string(model.StatusReopened):   0,
		string(model.StatusResolved):   0,
		string(model.StatusDismissed):  0,
	}

	open, inactive := 0, 0
	for _, issue := range issues {
		n, _ := status[string(issue.Status)].(int)
		status[string(issue.Status)] = n + 1
		if !issue.IsActive {
			inactive++
			continue
		}
		if issue.Status.IsOpenLike() {
			open++
			if n, ok := severity[string(issue.Severity)].(int); ok {
				severity[string(issue.Severity)] = n + 1
			}
		}
	}

	return map[string]interface{}{
		"total_issues":    len(issues),
		"open_issues":     open,
		"inactive_issues": inactive,
		"open_severity":   severity,
		"by_status":       status,
	}, nil
}

// ResolveMTTR computes mean time to remediate for issues resolved in the
// last days, measured from creation to resolved_at.
func ResolveMTTR(ctx context.Context, s store.IssueStore, workspaceID string, days int) (map[string]interface{}, error) {
	if days <= 0 {
		days = 90
	}
	issues, err := visibleIssues(ctx, s, model.IssueFilter{WorkspaceID: workspaceID, Status: model.StatusResolved})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	samples := make(map[model.Severity][]float64)
	var total float64
	count := 0
	for _, issue := range issues {
		if issue.ResolvedAt == nil || issue.ResolvedAt.Before(cutoff) {
			continue
		}
		d := issue.ResolvedAt.Sub(issue.CreatedAt).Hours() / 24
		if d < 0 {
			d = 0
		}
		samples[issue.Severity] = append(samples[issue.Severity], d)
		total += d
		count++
	}

	bySeverity := make([]map[string]interface{}, 0, len(severityOrder))
	for _, sev := range severityOrder {
		values := samples[sev]
		if len(values) == 0 {
			continue
		}
		bySeverity = append(bySeverity, summarize(string(sev), values))
	}

	overall := 0.0
	if count > 0 {
		overall = round(total / float64(count))
	}
	return map[string]interface{}{
		"by_severity":       bySeverity,
		"overall_mean_days": overall,
		"analysis_period":   days,
		"total_remediated":  count,
	}, nil
}

func summarize(severity string, values []float64) map[string]interface{} {
	sort.Float64s(values)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	n := len(values)
	median := values[n/2]
	if n%2 == 0 {
		median = (values[n/2-1] + values[n/2]) / 2
	}
	return map[string]interface{}{
		"severity":    severity,
		"mean_days":   round(sum / float64(n)),
		"median_days": round(median),
		"min_days":    round(values[0]),
		"max_days":    round(values[n-1]),
		"sample_size": n,
	}
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
