package models

// Priority of a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is a derived maintenance advisory. It is recomputed from
// the current codes and parameters and never stored.
type Recommendation struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Priority      Priority `json:"priority"`
	Components    []string `json:"components"`
	EstimatedCost string   `json:"estimatedCost"`
}
