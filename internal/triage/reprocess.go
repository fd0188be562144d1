package triage

import (
	"time"

	"github.com/stewardbot/steward/internal/state"
	"github.com/stewardbot/steward/internal/types"
)

// Reason tags why an issue was selected for or excluded from reprocessing.
type Reason string

const (
	ReasonFirstAnalysis        Reason = "first_analysis"
	ReasonCooldownActive       Reason = "cooldown_active"
	ReasonContentChanged       Reason = "content_changed"
	ReasonNoChangesSinceAction Reason = "no_changes_since_our_action"
	ReasonUserResponded        Reason = "user_responded_to_clarification"
	ReasonNewUserComments      Reason = "new_user_comments"
	ReasonCommentCountUp       Reason = "comment_count_increased"
	ReasonNoMeaningfulChanges  Reason = "no_meaningful_changes"
)

// Decision is the outcome of the reprocessing policy for one issue.
type Decision struct {
	Process bool
	Reason  Reason
}

// ShouldReprocess decides whether an issue warrants re-analysis. It is a
// pure function: identical inputs always produce the identical decision.
//
// comments are the issue's comments as fetched by the caller; a failed fetch
// is fail-open, the caller passes nil and the comment rule simply finds
// nothing. botLogin identifies the steward's own comments so they never
// count as user activity.
//
// The rules run in strict priority order; the first match wins:
//
//  1. never seen before             → process (first_analysis)
//  2. acted within the cooldown     → skip (cooldown_active)
//  3. title/body fingerprint moved  → process (content_changed)
//  4. not updated since our action  → skip (no_changes_since_our_action)
//  5. user commented after our act  → process (user_responded_to_clarification
//     when we were awaiting a response, else new_user_comments)
//  6. comment count increased       → process (comment_count_increased)
//  7. otherwise                     → skip (no_meaningful_changes)
func ShouldReprocess(
	snap types.IssueSnapshot,
	rec *state.IssueRecord,
	comments []types.IssueComment,
	botLogin string,
	policy Policy,
	now time.Time,
) Decision {
	if rec == nil {
		return Decision{Process: true, Reason: ReasonFirstAnalysis}
	}

	if rec.LastActionAt != nil && now.Sub(*rec.LastActionAt) < policy.Cooldown {
		return Decision{Process: false, Reason: ReasonCooldownActive}
	}

	if ContentHash(snap.Title, snap.Body) != rec.ContentHash {
		return Decision{Process: true, Reason: ReasonContentChanged}
	}

	if rec.LastActionAt != nil && !snap.UpdatedAt.After(*rec.LastActionAt) {
		return Decision{Process: false, Reason: ReasonNoChangesSinceAction}
	}

	if hasNewUserComment(comments, rec, botLogin) {
		if rec.AwaitingResponse {
			return Decision{Process: true, Reason: ReasonUserResponded}
		}
		return Decision{Process: true, Reason: ReasonNewUserComments}
	}

	if snap.CommentCount > rec.LastSeenCommentCount {
		return Decision{Process: true, Reason: ReasonCommentCountUp}
	}

	return Decision{Process: false, Reason: ReasonNoMeaningfulChanges}
}

// hasNewUserComment reports whether anyone other than the steward commented
// after our last action. Without a recorded action there is no reference
// point, so the answer is no.
func hasNewUserComment(comments []types.IssueComment, rec *state.IssueRecord, botLogin string) bool {
	if rec.LastActionAt == nil {
		return false
	}
	for _, c := range comments {
		if c.Author == botLogin {
			continue
		}
		if c.CreatedAt.After(*rec.LastActionAt) {
			return true
		}
	}
	return false
}
