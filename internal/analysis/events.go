package analysis

import "github.com/salescope/salescope/internal/model"

// Client-facing event envelope types. Each is one push frame; the Type field
// is the discriminator the SPA switches on. Unknown types are ignorable on
// the client side, so new frame kinds can be added without breaking it.

// ThinkingStart opens every stream.
type ThinkingStart struct {
	Type string `json:"type"`
}

// ThinkingProgress forwards one model delta. Progress is a fixed value: the
// true length of a model stream is unknowable up front, so the field only
// signals liveness.
type ThinkingProgress struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Progress    int    `json:"progress"`
	IsReasoning bool   `json:"isReasoning"`
}

// ThinkingEnd closes the progress phase before the result frame.
type ThinkingEnd struct {
	Type         string `json:"type"`
	AutoCollapse bool   `json:"autoCollapse"`
}

// AnalysisResult is the single success frame.
type AnalysisResult struct {
	Type   string                `json:"type"`
	Result model.AnalysisResults `json:"result"`
}

// ErrorEvent is the single failure frame; the stream ends after it.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// streamProgress is reported with every forwarded delta.
const streamProgress = 60

func newThinkingStart() ThinkingStart {
	return ThinkingStart{Type: "thinking_start"}
}

func newThinkingProgress(message string, isReasoning bool) ThinkingProgress {
	return ThinkingProgress{
		Type:        "thinking_progress",
		Message:     message,
		Progress:    streamProgress,
		IsReasoning: isReasoning,
	}
}

func newThinkingEnd() ThinkingEnd {
	return ThinkingEnd{Type: "thinking_end", AutoCollapse: true}
}

func newAnalysisResult(markdown, raw string) AnalysisResult {
	return AnalysisResult{
		Type:   "analysis_result",
		Result: model.AnalysisResults{MarkdownContent: markdown, RawResponse: raw},
	}
}

func newErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}
