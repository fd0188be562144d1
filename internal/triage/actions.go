package triage

import (
	"github.com/stewardbot/steward/internal/state"
	"github.com/stewardbot/steward/internal/types"
)

// Labels the steward applies on its own initiative, alongside the
// classifier-suggested ones.
const (
	// LabelPotentialDuplicate marks issues that look like existing reports.
	LabelPotentialDuplicate = "potential-duplicate"
	// LabelNeedsInformation marks issues waiting on reporter clarification.
	LabelNeedsInformation = "needs-information"
)

// needsInformationConfidence is the fixed confidence attached to the
// needs-information label: asking for clarification is cheap and the
// classifier already flagged the gap.
const needsInformationConfidence = 0.95

// ShouldAct reports whether the overall classifier confidence clears the
// policy threshold. Below it the steward takes no action at all.
func (p Policy) ShouldAct(result types.ClassificationResult) bool {
	return result.OverallConfidence >= p.OverallThreshold
}

// DetermineActions turns a classification result into the ordered list of
// remediation actions for one issue. It is purely functional: no mutation,
// no I/O; the caller executes or logs each action and reports back what
// actually ran so state can be updated.
//
// If the overall confidence is below the policy threshold the list is empty.
// Otherwise four independent rules run in a fixed order (labels, duplicates,
// clarification, context), each appending zero or more actions. Later rules
// never suppress earlier ones.
func DetermineActions(
	result types.ClassificationResult,
	rec *state.IssueRecord,
	currentLabels []string,
	policy Policy,
) []types.Action {
	if !policy.ShouldAct(result) {
		return nil
	}

	var actions []types.Action

	// Labels. Skip labels already on the issue, and labels we added once
	// before: if a maintainer removed one of ours we never re-add it.
	if len(result.SuggestedLabels) > 0 && result.LabelConfidence >= policy.LabelFloor {
		newLabels := filterLabels(result.SuggestedLabels, currentLabels, rec)
		if len(newLabels) > 0 {
			actions = append(actions, types.AddLabels{
				Labels:     newLabels,
				Confidence: result.LabelConfidence,
			})
		}
	}

	// Duplicates.
	if len(result.Duplicates) > 0 && result.DuplicateConfidence >= policy.DuplicateFloor {
		actions = append(actions, types.CommentDuplicate{
			Candidates: result.Duplicates,
			Confidence: result.DuplicateConfidence,
		})
		if rec == nil || !rec.HasAddedLabel(LabelPotentialDuplicate) {
			actions = append(actions, types.AddLabels{
				Labels:     []string{LabelPotentialDuplicate},
				Confidence: result.DuplicateConfidence,
			})
		}
	}

	// Clarification. Capped per issue so the steward never nags.
	if result.NeedsClarification && result.ClarificationMessage != "" {
		if rec == nil || rec.ClarificationAttempts < policy.MaxClarificationAttempts {
			actions = append(actions, types.RequestClarification{
				Message:     result.ClarificationMessage,
				MissingInfo: result.MissingInfo,
			})
			if rec == nil || !rec.HasAddedLabel(LabelNeedsInformation) {
				actions = append(actions, types.AddLabels{
					Labels:     []string{LabelNeedsInformation},
					Confidence: needsInformationConfidence,
				})
			}
		}
	}

	// Context. Advisory, no confidence gate.
	if len(result.ImplementationHints) > 0 {
		actions = append(actions, types.AddContext{
			Hints:         result.ImplementationHints,
			RelatedIssues: result.RelatedIssues,
		})
	}

	return actions
}

func filterLabels(suggested, current []string, rec *state.IssueRecord) []string {
	currentSet := make(map[string]struct{}, len(current))
	for _, l := range current {
		currentSet[l] = struct{}{}
	}

	var out []string
	for _, label := range suggested {
		if _, present := currentSet[label]; present {
			continue
		}
		if rec != nil && rec.HasAddedLabel(label) {
			continue
		}
		out = append(out, label)
	}
	return out
}
