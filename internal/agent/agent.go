// Package agent orchestrates one steward run: deciding which issues to
// re-examine, driving the collaborators, executing the determined actions,
// and committing per-issue bookkeeping and run metrics.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/stewardbot/steward/internal/state"
	"github.com/stewardbot/steward/internal/tracker"
	"github.com/stewardbot/steward/internal/triage"
	"github.com/stewardbot/steward/internal/types"
)

// similarityResults is how many ranked matches each issue is bucketed over.
const similarityResults = 5

// Tracker is the issue-tracking collaborator surface the agent needs.
type Tracker interface {
	BotLogin(ctx context.Context) string
	ListOpenIssues(ctx context.Context, since time.Time, max int) ([]types.IssueSnapshot, error)
	ListOpenIssueNumbers(ctx context.Context) (map[int]struct{}, error)
	ListComments(ctx context.Context, number int) ([]types.IssueComment, error)
	AddLabels(ctx context.Context, number int, labels []string) error
	AddComment(ctx context.Context, number int, body string) error
}

// Classifier is the classification collaborator surface.
type Classifier interface {
	Classify(ctx context.Context, snap types.IssueSnapshot, similar []types.SimilarityMatch) (types.ClassificationResult, error)
}

// SimilarityIndex is the similarity-search collaborator surface.
type SimilarityIndex interface {
	Add(ctx context.Context, snap types.IssueSnapshot) error
	Search(ctx context.Context, snap types.IssueSnapshot, limit int) ([]types.SimilarityMatch, error)
}

// Config holds agent construction parameters.
type Config struct {
	Tracker    Tracker
	Classifier Classifier
	Index      SimilarityIndex
	Store      *state.Store
	Policy     triage.Policy

	// DryRun logs actions instead of executing them. Dry-run actions count
	// toward run metrics but never toward execution bookkeeping.
	DryRun bool
	// MaxIssues caps how many issues one run fetches.
	MaxIssues int
	// CleanupInterval gates the closed-issue sweep.
	CleanupInterval time.Duration

	Logger *slog.Logger
	// Out receives the human-readable run report. Defaults to stdout.
	Out io.Writer
}

// Agent runs the triage loop. Issues are processed strictly sequentially;
// concurrent runs against the same state store are not supported.
type Agent struct {
	tracker    Tracker
	classifier Classifier
	index      SimilarityIndex
	store      *state.Store
	policy     triage.Policy

	dryRun          bool
	maxIssues       int
	cleanupInterval time.Duration

	logger *slog.Logger
	out    io.Writer
	now    func() time.Time
}

// New creates an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Tracker == nil || cfg.Classifier == nil || cfg.Index == nil || cfg.Store == nil {
		return nil, fmt.Errorf("tracker, classifier, index, and store are all required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Agent{
		tracker:         cfg.Tracker,
		classifier:      cfg.Classifier,
		index:           cfg.Index,
		store:           cfg.Store,
		policy:          cfg.Policy,
		dryRun:          cfg.DryRun,
		maxIssues:       cfg.MaxIssues,
		cleanupInterval: cfg.CleanupInterval,
		logger:          logger,
		out:             out,
		now:             time.Now,
	}, nil
}

// Run executes one triage pass. Per-issue failures are recorded on the run
// and do not abort it; a run-level setup failure aborts but the partial
// metrics are still persisted.
func (a *Agent) Run(ctx context.Context) (*state.RunRecord, error) {
	runID := uuid.NewString()
	rec := a.store.StartRun(runID)
	started := a.now()

	a.logger.Info("starting run", "run_id", runID, "dry_run", a.dryRun)

	runErr := a.run(ctx, rec)
	if runErr != nil {
		rec.Errors = append(rec.Errors, fmt.Sprintf("run failed: %v", runErr))
	}

	rec.DurationSeconds = a.now().Sub(started).Seconds()
	a.renderSummary(rec)

	if err := a.store.FinishRun(rec); err != nil {
		a.logger.Error("failed to persist run state", "run_id", runID, "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return rec, runErr
}

func (a *Agent) run(ctx context.Context, rec *state.RunRecord) error {
	botLogin := a.tracker.BotLogin(ctx)

	if a.store.ShouldCleanup(a.cleanupInterval) {
		a.cleanupClosedIssues(ctx)
	}

	var since time.Time
	if last := a.store.LastRun(); last != nil {
		since = *last
	}
	snapshots, err := a.tracker.ListOpenIssues(ctx, since, a.maxIssues)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	selected := a.selectIssues(ctx, snapshots, botLogin)
	a.logger.Info("selected issues for processing", "candidates", len(snapshots), "selected", len(selected))

	for _, snap := range selected {
		if err := a.processIssue(ctx, snap, rec); err != nil {
			a.logger.Error("issue processing failed", "issue", snap.Number, "error", err)
			rec.Errors = append(rec.Errors, fmt.Sprintf("issue #%d: %v", snap.Number, err))
			continue
		}
		rec.IssuesProcessed++
	}
	return nil
}

// cleanupClosedIssues sweeps records for issues that are no longer open.
// Failure to fetch the open set just postpones the sweep.
func (a *Agent) cleanupClosedIssues(ctx context.Context) {
	open, err := a.tracker.ListOpenIssueNumbers(ctx)
	if err != nil {
		a.logger.Warn("skipping closed-issue cleanup, open set unavailable", "error", err)
		return
	}
	removed := a.store.Cleanup(open)
	a.logger.Info("closed-issue cleanup complete", "removed", removed)
}

// selectIssues applies the reprocessing policy to each candidate snapshot.
func (a *Agent) selectIssues(ctx context.Context, snapshots []types.IssueSnapshot, botLogin string) []types.IssueSnapshot {
	now := a.now()

	var selected []types.IssueSnapshot
	for _, snap := range snapshots {
		stored := a.store.Get(snap.Number)

		// Comments only matter once we have acted on the issue before.
		// Fetch failures are fail-open: the decision sees no comments.
		var comments []types.IssueComment
		if stored != nil && stored.LastActionAt != nil {
			var err error
			comments, err = a.tracker.ListComments(ctx, snap.Number)
			if err != nil {
				a.logger.Warn("failed to fetch comments, assuming none", "issue", snap.Number, "error", err)
				comments = nil
			}
		}

		decision := triage.ShouldReprocess(snap, stored, comments, botLogin, a.policy, now)
		if decision.Process {
			a.logger.Info("will process issue", "issue", snap.Number, "reason", decision.Reason)
			selected = append(selected, snap)
		} else {
			a.logger.Debug("skipping issue", "issue", snap.Number, "reason", decision.Reason)
		}
	}
	return selected
}

func (a *Agent) processIssue(ctx context.Context, snap types.IssueSnapshot, rec *state.RunRecord) error {
	// Index first so future runs can find this issue.
	if err := a.index.Add(ctx, snap); err != nil {
		a.logger.Warn("failed to index issue for similarity search", "issue", snap.Number, "error", err)
	}

	hash := triage.ContentHash(snap.Title, snap.Body)
	stored := a.store.GetOrCreate(snap.Number, hash)

	// Reaching this point means something changed since we asked, so the
	// pending clarification is settled. A fresh request below transitions
	// the flag back and counts as a new attempt.
	if stored.AwaitingResponse {
		cleared := false
		a.store.Update(snap.Number, state.RecordUpdate{AwaitingResponse: &cleared})
		stored.AwaitingResponse = false
	}

	matches, err := a.index.Search(ctx, snap, similarityResults)
	if err != nil {
		a.logger.Warn("similarity search failed, continuing without matches", "issue", snap.Number, "error", err)
		matches = nil
	}
	buckets := triage.BucketMatches(matches, snap.Number)

	result, err := a.classifier.Classify(ctx, snap, matches)
	if err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	result.Duplicates = buckets.Duplicates
	result.DuplicateConfidence = buckets.DuplicateConfidence
	result.RelatedIssues = buckets.Related

	actions := triage.DetermineActions(result, stored, snap.Labels, a.policy)
	if len(actions) == 0 {
		if !a.policy.ShouldAct(result) {
			a.logger.Info("confidence below action threshold",
				"issue", snap.Number,
				"confidence", result.OverallConfidence,
				"threshold", a.policy.OverallThreshold,
				"gap", a.policy.OverallThreshold-result.OverallConfidence)
		} else {
			a.logger.Info("no actions needed", "issue", snap.Number)
		}
	}

	a.handleActions(ctx, snap, actions, rec)

	// Hash and comment count are always committed, even after an action
	// failure: re-evaluating next run is cheap and idempotent. Bookkeeping
	// for the failed action itself is not committed.
	count := snap.CommentCount
	a.store.Update(snap.Number, state.RecordUpdate{
		ContentHash:  hash,
		CommentCount: &count,
	})
	return nil
}

// handleActions executes (or, in dry-run mode, logs) each action in order.
// The first execution failure abandons the remaining actions for this issue.
func (a *Agent) handleActions(ctx context.Context, snap types.IssueSnapshot, actions []types.Action, rec *state.RunRecord) {
	for _, action := range actions {
		if a.dryRun {
			fmt.Fprintf(a.out, "  %s %s\n", color.YellowString("DRY-RUN:"), action.Describe())
			rec.ActionsTaken++
			continue
		}

		if err := a.executeAction(ctx, snap.Number, action); err != nil {
			a.logger.Error("action execution failed", "issue", snap.Number, "kind", action.Kind(), "error", err)
			rec.Errors = append(rec.Errors, fmt.Sprintf("issue #%d %s: %v", snap.Number, action.Kind(), err))
			fmt.Fprintf(a.out, "  %s %s: %v\n", color.RedString("✗"), action.Kind(), err)
			return
		}

		fmt.Fprintf(a.out, "  %s %s\n", color.GreenString("✓"), action.Describe())
		rec.ActionsTaken++
		a.commitAction(snap.Number, action)
	}
}

// executeAction performs the tracker mutation for one action.
func (a *Agent) executeAction(ctx context.Context, number int, action types.Action) error {
	switch act := action.(type) {
	case types.AddLabels:
		return a.tracker.AddLabels(ctx, number, act.Labels)
	case types.CommentDuplicate:
		return a.tracker.AddComment(ctx, number, tracker.FormatDuplicateComment(act.Candidates))
	case types.RequestClarification:
		return a.tracker.AddComment(ctx, number, tracker.FormatClarificationComment(act.Message, act.MissingInfo))
	case types.AddContext:
		return a.tracker.AddComment(ctx, number, tracker.FormatContextComment(act.Hints, act.RelatedIssues))
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind())
	}
}

// commitAction records the bookkeeping for an action that actually ran.
func (a *Agent) commitAction(number int, action types.Action) {
	update := state.RecordUpdate{ActionKind: action.Kind()}

	switch act := action.(type) {
	case types.AddLabels:
		update.LabelsAdded = act.Labels
	case types.RequestClarification:
		awaiting := true
		update.AwaitingResponse = &awaiting
		update.RequestedInfo = act.MissingInfo
	}

	a.store.Update(number, update)
}

// renderSummary prints the run report.
func (a *Agent) renderSummary(rec *state.RunRecord) {
	bold := color.New(color.Bold)

	fmt.Fprintln(a.out)
	bold.Fprintln(a.out, "Run Summary")
	fmt.Fprintf(a.out, "  Run ID:           %s\n", rec.RunID)
	fmt.Fprintf(a.out, "  Issues Processed: %d\n", rec.IssuesProcessed)
	fmt.Fprintf(a.out, "  Actions Taken:    %d\n", rec.ActionsTaken)
	fmt.Fprintf(a.out, "  Duration:         %.1fs\n", rec.DurationSeconds)
	fmt.Fprintf(a.out, "  Errors:           %d\n", len(rec.Errors))

	if len(rec.Errors) > 0 {
		fmt.Fprintf(a.out, "\n%s\n", color.RedString("Errors:"))
		for _, e := range rec.Errors {
			fmt.Fprintf(a.out, "  - %s\n", e)
		}
	}
}
