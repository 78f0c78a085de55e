package model

import "time"

// ReportStatus tracks the lifecycle of a stored analysis report.
type ReportStatus string

const (
	StatusProcessing ReportStatus = "PROCESSING"
	StatusCompleted  ReportStatus = "COMPLETED"
	StatusError      ReportStatus = "ERROR"
)

// AnalysisResults holds the model's answer: the extracted markdown payload
// and the untouched full response it was pulled from.
type AnalysisResults struct {
	MarkdownContent string `json:"markdownContent"`
	RawResponse     string `json:"rawResponse"`
}

// AnalysisReport is the persisted record of one analysis run.
//
// The buffered path creates it in PROCESSING at submission and mutates it once
// on completion. The streaming path writes a COMPLETED record directly under a
// fresh id after the client already received its result; the two paths do not
// share ids.
type AnalysisReport struct {
	ReportID         string           `json:"reportId"`
	UserID           string           `json:"userId"`
	Status           ReportStatus     `json:"status"`
	QueryParams      *AnalysisQuery   `json:"queryParams,omitempty"`
	RawData          []AggregateRow   `json:"rawData,omitempty"`
	Results          *AnalysisResults `json:"analysisResults,omitempty"`
	ReasoningContent string           `json:"reasoningContent,omitempty"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	// TTL is the epoch second after which the store may expire the item.
	// Enforcement belongs to the store, not the application.
	TTL int64 `json:"ttl"`
}
