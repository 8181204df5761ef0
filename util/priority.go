package util

import "github.com/complyhq/issues-backend/v2/model"

// Priority levels, most urgent first.
const (
	PriorityUrgent = 1
	PriorityHigh   = 2
	PriorityNormal = 3
	PriorityLow    = 4
)

// lowConfidence is the score below which a finding is treated as one level less urgent.
const lowConfidence = 50

// DerivePriority maps a severity and confidence score to a priority level.
func DerivePriority(severity model.Severity, confidence int) int {
	var p int
	switch severity {
	case model.SeverityCritical:
		p = PriorityUrgent
	case model.SeverityHigh:
		p = PriorityHigh
	case model.SeverityMedium:
		p = PriorityNormal
	default:
		p = PriorityLow
	}
	if confidence < lowConfidence && p < PriorityLow {
		p++
	}
	return p
}

// ResolvePriority returns the caller-supplied priority when set, otherwise the derived one.
func ResolvePriority(supplied int, severity model.Severity, confidence int) int {
	if supplied > 0 {
		return supplied
	}
	return DerivePriority(severity, confidence)
}
