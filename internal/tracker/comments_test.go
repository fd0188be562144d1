package tracker

import (
	"strings"
	"testing"

	"github.com/stewardbot/steward/internal/types"
)

func TestFormatDuplicateComment(t *testing.T) {
	candidates := []types.SimilarityMatch{
		{Number: 12, Title: "Crash on startup", State: types.StateOpen, Score: 0.92},
		{Number: 40, Title: "Startup panic", State: types.StateClosed, Score: 0.88},
	}

	got := FormatDuplicateComment(candidates)

	for _, want := range []string{
		"appears to be related to existing issues",
		"- #12: Crash on startup (open)",
		"- #40: Startup panic (closed)",
		"please clarify what makes this issue unique",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("comment missing %q:\n%s", want, got)
		}
	}
}

func TestFormatClarificationComment(t *testing.T) {
	msg := "Could you share the exact steps to reproduce?"
	if got := FormatClarificationComment(msg, []string{"steps"}); got != msg {
		t.Errorf("FormatClarificationComment() = %q, want the message verbatim", got)
	}
}

func TestFormatContextComment(t *testing.T) {
	got := FormatContextComment(
		[]string{"check the retry loop", "the config loader swallows errors"},
		[]int{4, 9},
	)

	for _, want := range []string{
		"**Implementation Context:**",
		"- check the retry loop",
		"- the config loader swallows errors",
		"**Related Issues:**",
		"- #4",
		"- #9",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("comment missing %q:\n%s", want, got)
		}
	}
}

func TestFormatContextCommentCapsRelatedLinks(t *testing.T) {
	related := []int{1, 2, 3, 4, 5, 6, 7}
	got := FormatContextComment([]string{"hint"}, related)

	if strings.Contains(got, "#6") || strings.Contains(got, "#7") {
		t.Errorf("related links not capped at %d:\n%s", maxRelatedIssueLinks, got)
	}
	if !strings.Contains(got, "#5") {
		t.Errorf("fifth related link missing:\n%s", got)
	}
}

func TestFormatContextCommentWithoutRelated(t *testing.T) {
	got := FormatContextComment([]string{"hint"}, nil)
	if strings.Contains(got, "Related Issues") {
		t.Errorf("unexpected related section:\n%s", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Errorf("comment has trailing newline:\n%q", got)
	}
}
