// Package insights computes derived views over test-case collections:
// review progress, priority-weighted health, traceability coverage and
// donut-chart geometry. Everything here is a pure function recomputed on
// every read; nothing is cached.
package insights

import (
	"math"

	"github.com/caseforge/caseforge/internal/domain"
)

// StatusCounts is a single-pass classification of a test-case list.
type StatusCounts struct {
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
	Exported int `json:"exported"`
	Total    int `json:"total"`
}

// Percentages is a normalized progress breakdown that always sums to 100
// when the underlying total is nonzero.
type Percentages struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

// CountStatuses classifies every case into exactly one bucket, so
// approved+pending+rejected+exported == total always holds.
func CountStatuses(cases []*domain.TestCase) StatusCounts {
	var c StatusCounts
	for _, tc := range cases {
		switch tc.Status {
		case domain.StatusApproved:
			c.Approved++
		case domain.StatusRejected:
			c.Rejected++
		case domain.StatusExported:
			c.Exported++
		default:
			c.Pending++
		}
		c.Total++
	}
	return c
}

// ProgressPercentages converts counts into rounded percentages. The
// rounding residual is assigned to the pending bucket so the three values
// sum to exactly 100 whenever total > 0, and to 0 otherwise.
func ProgressPercentages(c StatusCounts) Percentages {
	if c.Total == 0 {
		return Percentages{}
	}
	approved := int(math.Round(float64(c.Approved) / float64(c.Total) * 100))
	rejected := int(math.Round(float64(c.Rejected) / float64(c.Total) * 100))
	return Percentages{
		Approved: approved,
		Rejected: rejected,
		Pending:  100 - approved - rejected,
	}
}

var priorityWeights = map[domain.Priority]int{
	domain.PriorityCritical: 4,
	domain.PriorityHigh:     3,
	domain.PriorityMedium:   2,
	domain.PriorityLow:      1,
}

// HealthScore is a priority-weighted score in [0,100]. An untagged case
// weighs the same as a low-priority one.
func HealthScore(cases []*domain.TestCase) int {
	if len(cases) == 0 {
		return 0
	}
	sum := 0
	for _, tc := range cases {
		w, ok := priorityWeights[tc.Priority]
		if !ok {
			w = 1
		}
		sum += w
	}
	return int(math.Round(float64(sum) / float64(len(cases)*4) * 100))
}

// TraceabilityCompleteness is the percentage of cases carrying both a
// requirement id and at least one source location.
func TraceabilityCompleteness(cases []*domain.TestCase) int {
	if len(cases) == 0 {
		return 0
	}
	traced := 0
	for _, tc := range cases {
		if tc.Traceability != nil && tc.Traceability.RequirementID != "" && len(tc.Traceability.Locations) > 0 {
			traced++
		}
	}
	return int(math.Round(float64(traced) / float64(len(cases)) * 100))
}

// chartPalette is the fixed 7-color cycle used for category arcs.
var chartPalette = []string{
	"#6366f1", "#22c55e", "#f59e0b", "#ef4444", "#06b6d4", "#a855f7", "#ec4899",
}

// PieSlice is one category arc in the donut chart.
type PieSlice struct {
	CategoryID string  `json:"category_id"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Fraction   float64 `json:"fraction"`
	StartAngle float64 `json:"start_angle"`
	EndAngle   float64 `json:"end_angle"`
	Color      string  `json:"color"`
	ShowLabel  bool    `json:"show_label"`
}

// CategorySize pairs a category with its case count for charting.
type CategorySize struct {
	Category *domain.TestCategory
	Count    int
}

// PieChartGeometry lays out one arc per category, proportional to its
// case count relative to the grand total. The palette cycles by category
// index, and slices at or below 5% of the total get their percentage
// label suppressed. Angles are degrees from 0 to 360.
func PieChartGeometry(sizes []CategorySize) []PieSlice {
	total := 0
	for _, s := range sizes {
		total += s.Count
	}
	if total == 0 {
		return nil
	}

	slices := make([]PieSlice, 0, len(sizes))
	angle := 0.0
	for i, s := range sizes {
		frac := float64(s.Count) / float64(total)
		slice := PieSlice{
			CategoryID: s.Category.ID,
			Label:      s.Category.Label,
			Count:      s.Count,
			Fraction:   frac,
			StartAngle: angle,
			EndAngle:   angle + frac*360,
			Color:      chartPalette[i%len(chartPalette)],
			ShowLabel:  frac > 0.05,
		}
		angle = slice.EndAngle
		slices = append(slices, slice)
	}
	return slices
}
