package classifier

import (
	"fmt"
	"strings"

	"github.com/stewardbot/steward/internal/types"
)

// maxSimilarContext caps how many similar issues go into the prompt.
const maxSimilarContext = 3

const classificationSystemPrompt = `You are an expert issue triager for a software project.

Your role is to analyze tracker issues and provide:
1. Accurate label suggestions from the allowed label set
2. Identification of missing information or unclear requirements
3. Implementation context when relevant

Always respond with valid JSON matching the required schema.
Be conservative with confidence scores - only use high confidence (>0.8) when very certain.`

func buildClassificationPrompt(snap types.IssueSnapshot, similar []types.SimilarityMatch, labels []string) string {
	body := snap.Body
	if strings.TrimSpace(body) == "" {
		body = "(no description)"
	}
	existing := "none"
	if len(snap.Labels) > 0 {
		existing = strings.Join(snap.Labels, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this issue and provide structured analysis as JSON.\n\n")
	fmt.Fprintf(&b, "**Issue #%d**\n", snap.Number)
	fmt.Fprintf(&b, "Title: %s\n", snap.Title)
	fmt.Fprintf(&b, "Body: %s\n", body)
	fmt.Fprintf(&b, "Existing Labels: %s\n\n", existing)

	b.WriteString("**Similar Issues (for context):**\n")
	b.WriteString(formatSimilarIssues(similar))
	b.WriteString("\n\n")

	b.WriteString(`Provide your analysis as JSON with this exact structure:
{
    "labels": ["label1", "label2"],
    "label_confidence": 0.0-1.0,
    "needs_clarification": true/false,
    "missing_info": ["info1", "info2"],
    "clarification_message": "message to ask for clarification (if needed)" or null,
    "implementation_hints": ["hint1", "hint2"],
    "overall_confidence": 0.0-1.0,
    "reasoning": "brief explanation of your analysis"
}

`)
	fmt.Fprintf(&b, "**Allowed labels:** %s\n\n", strings.Join(labels, ", "))
	b.WriteString(`**Important:**
- Only suggest labels you're confident about (>80% certainty)
- Set needs_clarification=true if critical information is missing
- Provide a specific, actionable clarification_message if needed
- Keep implementation_hints brief and relevant to code structure
- Only suggest 1-3 most relevant labels
- Don't duplicate existing labels

Respond ONLY with valid JSON, no additional text.`)

	return b.String()
}

func formatSimilarIssues(similar []types.SimilarityMatch) string {
	if len(similar) == 0 {
		return "No similar issues found."
	}
	var lines []string
	for i, m := range similar {
		if i == maxSimilarContext {
			break
		}
		lines = append(lines, fmt.Sprintf("- Issue #%d: %s (similarity: %.2f, state: %s)", m.Number, m.Title, m.Score, m.State))
	}
	return strings.Join(lines, "\n")
}
