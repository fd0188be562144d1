package tracker

import (
	"fmt"
	"strings"

	"github.com/stewardbot/steward/internal/types"
)

// maxRelatedIssueLinks caps how many related issues a context comment cites.
const maxRelatedIssueLinks = 5

// FormatDuplicateComment renders the comment posted when an issue looks like
// existing reports.
func FormatDuplicateComment(candidates []types.SimilarityMatch) string {
	var b strings.Builder
	b.WriteString("This issue appears to be related to existing issues:\n\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- #%d: %s (%s)\n", c.Number, c.Title, c.State)
	}
	b.WriteString("\nPlease check if these issues address your concern. " +
		"If this is indeed a duplicate, please reference the related issue. " +
		"If there are differences, please clarify what makes this issue unique.")
	return b.String()
}

// FormatClarificationComment renders the clarification request. The message
// comes from the classifier already phrased for the reporter.
func FormatClarificationComment(message string, missingInfo []string) string {
	return message
}

// FormatContextComment renders implementation hints and related issue links.
func FormatContextComment(hints []string, relatedIssues []int) string {
	var b strings.Builder
	b.WriteString("**Implementation Context:**\n\n")
	for _, hint := range hints {
		fmt.Fprintf(&b, "- %s\n", hint)
	}
	if len(relatedIssues) > 0 {
		b.WriteString("\n**Related Issues:**\n")
		for i, number := range relatedIssues {
			if i == maxRelatedIssueLinks {
				break
			}
			fmt.Fprintf(&b, "- #%d\n", number)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
