package model

import (
	"fmt"
	"time"
)

// Dimensions and metrics accepted by the aggregation layer. Anything else in
// a request is rejected before it reaches SQL construction.
const (
	DimensionCategory = "category"
	DimensionChannel  = "channel"
	DimensionDate     = "date"

	MetricSales    = "sales"
	MetricOrders   = "orders"
	MetricAOV      = "aov"
	MetricUnits    = "units"
	MetricDiscount = "discount"
)

// CompareWith selects an optional comparison window for an analysis run.
const (
	CompareNone           = "none"
	ComparePreviousPeriod = "previous_period"
	ComparePreviousYear   = "previous_year"
)

const dateLayout = "2006-01-02"

// TimeRange bounds an analysis query. Dates travel as YYYY-MM-DD strings,
// matching what the SPA sends.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Filters narrows an aggregation to specific categories or sales channels.
type Filters struct {
	Categories []string `json:"categories,omitempty"`
	Channels   []string `json:"channels,omitempty"`
}

// AnalysisQuery is the full parameter set for one analysis run, shared by the
// buffered and streaming paths.
type AnalysisQuery struct {
	TimeRange      TimeRange `json:"timeRange"`
	Dimensions     []string  `json:"dimensions"`
	Metrics        []string  `json:"metrics"`
	Filters        Filters   `json:"filters"`
	CompareWith    string    `json:"compareWith,omitempty"`
	ModelID        string    `json:"modelId,omitempty"`
	EnableThinking bool      `json:"enableThinking,omitempty"`
}

var (
	validDimensions = map[string]bool{
		DimensionCategory: true,
		DimensionChannel:  true,
		DimensionDate:     true,
	}
	validMetrics = map[string]bool{
		MetricSales:    true,
		MetricOrders:   true,
		MetricAOV:      true,
		MetricUnits:    true,
		MetricDiscount: true,
	}
)

// Validate checks the invariants required before a query may be executed:
// parseable time range with start <= end, and non-empty, known dimensions and
// metrics.
func (q AnalysisQuery) Validate() error {
	start, err := time.Parse(dateLayout, q.TimeRange.Start)
	if err != nil {
		return fmt.Errorf("invalid time range start %q", q.TimeRange.Start)
	}
	end, err := time.Parse(dateLayout, q.TimeRange.End)
	if err != nil {
		return fmt.Errorf("invalid time range end %q", q.TimeRange.End)
	}
	if start.After(end) {
		return fmt.Errorf("time range start %s is after end %s", q.TimeRange.Start, q.TimeRange.End)
	}
	if len(q.Dimensions) == 0 {
		return fmt.Errorf("at least one dimension required")
	}
	for _, d := range q.Dimensions {
		if !validDimensions[d] {
			return fmt.Errorf("unknown dimension %q", d)
		}
	}
	if len(q.Metrics) == 0 {
		return fmt.Errorf("at least one metric required")
	}
	for _, m := range q.Metrics {
		if !validMetrics[m] {
			return fmt.Errorf("unknown metric %q", m)
		}
	}
	switch q.CompareWith {
	case "", CompareNone, ComparePreviousPeriod, ComparePreviousYear:
	default:
		return fmt.Errorf("unknown compareWith %q", q.CompareWith)
	}
	return nil
}

// AggregateRow is one row of the aggregation result. Keys are column names
// produced by the warehouse; values are strings or numbers. The analysis
// pipeline treats rows as opaque JSON-serializable data.
type AggregateRow map[string]any
