package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/salescope/salescope/internal/model"
)

// outputPattern finds the first delimited payload in a completed transcript.
// Non-greedy so a model that emits several tag pairs never merges them.
var outputPattern = regexp.MustCompile(`(?s)<output>(.*?)</output>`)

// BuildPrompt renders the instruction text sent to the model: the query's
// time range, the serialized aggregate rows, the analytical task, and the
// delimiter contract that ExtractOutput depends on.
func BuildPrompt(rows []model.AggregateRow, q model.AnalysisQuery) (string, error) {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", &PromptError{Err: fmt.Errorf("serialize aggregate rows: %w", err)}
	}
	var sb strings.Builder
	sb.WriteString("You are an e-commerce data analyst. Analyze the following sales data and provide professional insight.\n\n")
	sb.WriteString("## Time range\n")
	fmt.Fprintf(&sb, "%s to %s\n\n", q.TimeRange.Start, q.TimeRange.End)
	if q.CompareWith != "" && q.CompareWith != model.CompareNone {
		fmt.Fprintf(&sb, "Rows labeled with a \"period\" column compare the current window against the %s.\n\n",
			strings.ReplaceAll(q.CompareWith, "_", " "))
	}
	sb.WriteString("## Sales data\n")
	sb.Write(data)
	sb.WriteString("\n\n## Task\n")
	sb.WriteString("Provide the following analysis:\n")
	sb.WriteString("1. Sales trend analysis: describe the major trends, including when sales rose or fell and by how much.\n")
	sb.WriteString("2. Causal analysis: the likely drivers behind the growth or decline.\n")
	sb.WriteString("3. Key findings: the 3-5 most important findings in the data.\n")
	sb.WriteString("4. Recommendations: 3-5 concrete, actionable recommendations based on the analysis.\n\n")
	sb.WriteString("Format the entire deliverable as Markdown and wrap it in a single pair of <output></output> tags:\n")
	sb.WriteString("<output>\n...your full Markdown analysis...\n</output>\n")
	sb.WriteString("Do not put any text outside the tags.\n")
	return sb.String(), nil
}

// ExtractOutput pulls the delimited payload out of a finished transcript.
// When the tags are absent the full transcript is returned verbatim so a
// model that ignored the delimiter contract still produces a usable result.
func ExtractOutput(content string) string {
	if m := outputPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}
