package types

import (
	"fmt"
	"strings"
)

// ActionKind identifies one of the four remediation action variants.
// The set is closed: the triage engine never emits anything else.
type ActionKind string

const (
	ActionAddLabels            ActionKind = "add_labels"
	ActionCommentDuplicate     ActionKind = "comment_duplicate"
	ActionRequestClarification ActionKind = "request_clarification"
	ActionAddContext           ActionKind = "add_context"
)

// IsValid checks if the action kind value is valid
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionAddLabels, ActionCommentDuplicate, ActionRequestClarification, ActionAddContext:
		return true
	}
	return false
}

// Action is one remediation step produced by the triage engine. Each variant
// carries a fixed payload shape; executing or logging an action is the
// caller's job, the engine only decides.
type Action interface {
	Kind() ActionKind
	// Describe returns a short human-readable summary for logs and dry runs.
	Describe() string
}

// AddLabels applies labels to the issue.
type AddLabels struct {
	Labels     []string
	Confidence float64
}

func (a AddLabels) Kind() ActionKind { return ActionAddLabels }

func (a AddLabels) Describe() string {
	return fmt.Sprintf("add labels %s (confidence %.2f)", strings.Join(a.Labels, ", "), a.Confidence)
}

// CommentDuplicate posts a comment pointing at likely duplicate issues.
type CommentDuplicate struct {
	Candidates []SimilarityMatch
	Confidence float64
}

func (a CommentDuplicate) Kind() ActionKind { return ActionCommentDuplicate }

func (a CommentDuplicate) Describe() string {
	nums := make([]string, len(a.Candidates))
	for i, c := range a.Candidates {
		nums[i] = fmt.Sprintf("#%d", c.Number)
	}
	return fmt.Sprintf("comment about duplicates %s (confidence %.2f)", strings.Join(nums, ", "), a.Confidence)
}

// RequestClarification asks the reporter for missing information.
type RequestClarification struct {
	Message     string
	MissingInfo []string
}

func (a RequestClarification) Kind() ActionKind { return ActionRequestClarification }

func (a RequestClarification) Describe() string {
	return fmt.Sprintf("request clarification (missing: %s)", strings.Join(a.MissingInfo, ", "))
}

// AddContext posts advisory implementation hints and related issue links.
// It carries no confidence gate.
type AddContext struct {
	Hints         []string
	RelatedIssues []int
}

func (a AddContext) Kind() ActionKind { return ActionAddContext }

func (a AddContext) Describe() string {
	return fmt.Sprintf("add implementation context (%d hints, %d related issues)", len(a.Hints), len(a.RelatedIssues))
}
