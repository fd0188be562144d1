package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// IssueSnapshot is a read-only view of a tracker issue at decision time.
// It carries only the fields the triage engine consumes; everything else
// stays behind the tracker collaborator.
type IssueSnapshot struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Labels       []string   `json:"labels"`
	State        IssueState `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CommentCount int        `json:"comment_count"`
}

// Validate checks if the snapshot has valid field values
func (s *IssueSnapshot) Validate() error {
	if s.Number <= 0 {
		return fmt.Errorf("issue number must be positive (got %d)", s.Number)
	}
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !s.State.IsValid() {
		return fmt.Errorf("invalid issue state: %s", s.State)
	}
	if s.CommentCount < 0 {
		return fmt.Errorf("comment_count cannot be negative (got %d)", s.CommentCount)
	}
	return nil
}

// HasLabel reports whether the label is currently present on the issue.
func (s *IssueSnapshot) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// IssueState represents the tracker-side state of an issue
type IssueState string

const (
	StateOpen   IssueState = "open"
	StateClosed IssueState = "closed"
)

// IsValid checks if the issue state value is valid
func (s IssueState) IsValid() bool {
	return s == StateOpen || s == StateClosed
}

// IssueComment is a single comment on an issue, used by the reprocessing
// decision to detect user activity after our last action.
type IssueComment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// SimilarityMatch is one ranked result from the similarity-search collaborator.
// Score is in [0.0, 1.0]; higher is more similar.
type SimilarityMatch struct {
	Number int        `json:"issue_number"`
	Title  string     `json:"title"`
	State  IssueState `json:"state"`
	Score  float64    `json:"similarity"`
}

// Validate checks if the match has valid field values
func (m *SimilarityMatch) Validate() error {
	if m.Number <= 0 {
		return fmt.Errorf("issue number must be positive (got %d)", m.Number)
	}
	if m.Score < 0.0 || m.Score > 1.0 {
		return fmt.Errorf("similarity must be between 0.0 and 1.0 (got %.2f)", m.Score)
	}
	return nil
}

// ClassificationResult is the structured output of the classification
// collaborator for one issue, combined with the similarity buckets.
//
// Confidence values are scalars in [0.0, 1.0] expressing classifier
// certainty, not calibrated probabilities.
type ClassificationResult struct {
	IssueNumber int `json:"issue_number"`

	// Classification
	SuggestedLabels []string `json:"suggested_labels"`
	LabelConfidence float64  `json:"label_confidence"`

	// Duplicate detection
	Duplicates          []SimilarityMatch `json:"potential_duplicates"`
	DuplicateConfidence float64           `json:"duplicate_confidence"`

	// Information quality
	NeedsClarification   bool     `json:"needs_clarification"`
	MissingInfo          []string `json:"missing_info"`
	ClarificationMessage string   `json:"clarification_message"`

	// Context enrichment
	RelatedIssues       []int    `json:"related_issues"`
	ImplementationHints []string `json:"implementation_hints"`

	OverallConfidence float64 `json:"overall_confidence"`

	// Raw is the unprocessed classifier payload, kept only for debugging.
	// It is never part of the decision contract.
	Raw json.RawMessage `json:"-"`
}

// NeutralResult returns a no-op classification: zero confidences, no labels,
// no clarification. Used when the classifier output cannot be parsed so the
// issue is still marked analyzed without taking any action.
func NeutralResult(issueNumber int) ClassificationResult {
	return ClassificationResult{IssueNumber: issueNumber}
}

// Validate checks if the classification result has valid field values
func (r *ClassificationResult) Validate() error {
	for _, pair := range []struct {
		name  string
		value float64
	}{
		{"label_confidence", r.LabelConfidence},
		{"duplicate_confidence", r.DuplicateConfidence},
		{"overall_confidence", r.OverallConfidence},
	} {
		if pair.value < 0.0 || pair.value > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", pair.name, pair.value)
		}
	}
	if r.NeedsClarification && r.ClarificationMessage == "" {
		return fmt.Errorf("clarification_message must be set when needs_clarification is true")
	}
	return nil
}
