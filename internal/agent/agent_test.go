package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardbot/steward/internal/state"
	"github.com/stewardbot/steward/internal/triage"
	"github.com/stewardbot/steward/internal/types"
)

// mockTracker replays canned issue data and records mutations.
type mockTracker struct {
	issues      []types.IssueSnapshot
	openNumbers map[int]struct{}
	comments    map[int][]types.IssueComment

	listErr        error
	openNumbersErr error
	labelErr       error
	commentErr     error

	addedLabels    map[int][][]string
	addedComments  map[int][]string
	commentFetches []int
}

func newMockTracker() *mockTracker {
	return &mockTracker{
		openNumbers:   map[int]struct{}{},
		comments:      map[int][]types.IssueComment{},
		addedLabels:   map[int][][]string{},
		addedComments: map[int][]string{},
	}
}

func (m *mockTracker) BotLogin(ctx context.Context) string { return "steward-bot" }

func (m *mockTracker) ListOpenIssues(ctx context.Context, since time.Time, max int) ([]types.IssueSnapshot, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.issues, nil
}

func (m *mockTracker) ListOpenIssueNumbers(ctx context.Context) (map[int]struct{}, error) {
	if m.openNumbersErr != nil {
		return nil, m.openNumbersErr
	}
	return m.openNumbers, nil
}

func (m *mockTracker) ListComments(ctx context.Context, number int) ([]types.IssueComment, error) {
	m.commentFetches = append(m.commentFetches, number)
	return m.comments[number], nil
}

func (m *mockTracker) AddLabels(ctx context.Context, number int, labels []string) error {
	if m.labelErr != nil {
		return m.labelErr
	}
	m.addedLabels[number] = append(m.addedLabels[number], labels)
	return nil
}

func (m *mockTracker) AddComment(ctx context.Context, number int, body string) error {
	if m.commentErr != nil {
		return m.commentErr
	}
	m.addedComments[number] = append(m.addedComments[number], body)
	return nil
}

// mockClassifier returns a fixed result per issue number.
type mockClassifier struct {
	results map[int]types.ClassificationResult
	err     error
	calls   []int
}

func (m *mockClassifier) Classify(ctx context.Context, snap types.IssueSnapshot, similar []types.SimilarityMatch) (types.ClassificationResult, error) {
	m.calls = append(m.calls, snap.Number)
	if m.err != nil {
		return types.NeutralResult(snap.Number), m.err
	}
	if r, ok := m.results[snap.Number]; ok {
		return r, nil
	}
	return types.NeutralResult(snap.Number), nil
}

// mockIndex records additions and replays canned matches.
type mockIndex struct {
	matches map[int][]types.SimilarityMatch
	added   []int
	addErr  error
}

func (m *mockIndex) Add(ctx context.Context, snap types.IssueSnapshot) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, snap.Number)
	return nil
}

func (m *mockIndex) Search(ctx context.Context, snap types.IssueSnapshot, limit int) ([]types.SimilarityMatch, error) {
	return m.matches[snap.Number], nil
}

type fixture struct {
	tracker    *mockTracker
	classifier *mockClassifier
	index      *mockIndex
	store      *state.Store
	out        *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return &fixture{
		tracker:    newMockTracker(),
		classifier: &mockClassifier{results: map[int]types.ClassificationResult{}},
		index:      &mockIndex{matches: map[int][]types.SimilarityMatch{}},
		store:      state.NewStore(filepath.Join(t.TempDir(), "steward.json"), logger),
		out:        &bytes.Buffer{},
	}
}

func (f *fixture) agent(t *testing.T, dryRun bool) *Agent {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a, err := New(Config{
		Tracker:         f.tracker,
		Classifier:      f.classifier,
		Index:           f.index,
		Store:           f.store,
		Policy:          triage.DefaultPolicy(),
		DryRun:          dryRun,
		MaxIssues:       20,
		CleanupInterval: 24 * time.Hour,
		Logger:          logger,
		Out:             f.out,
	})
	require.NoError(t, err)
	return a
}

func confidentResult(number int, labels ...string) types.ClassificationResult {
	return types.ClassificationResult{
		IssueNumber:       number,
		SuggestedLabels:   labels,
		LabelConfidence:   0.9,
		OverallConfidence: 0.9,
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Policy: triage.DefaultPolicy()})
	assert.Error(t, err)
}

func TestRunProcessesAndCommitsState(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "Crash on startup", Body: "panic", State: types.StateOpen, CommentCount: 2},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = confidentResult(1, "bug")

	a := f.agent(t, false)
	rec, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.IssuesProcessed)
	assert.Equal(t, 1, rec.ActionsTaken)
	assert.Empty(t, rec.Errors)

	require.Len(t, f.tracker.addedLabels[1], 1)
	assert.Equal(t, []string{"bug"}, f.tracker.addedLabels[1][0])
	assert.Equal(t, []int{1}, f.index.added)

	stored := f.store.Get(1)
	require.NotNil(t, stored)
	assert.Equal(t, triage.ContentHash("Crash on startup", "panic"), stored.ContentHash)
	assert.Equal(t, 2, stored.LastSeenCommentCount)
	assert.Equal(t, []string{"bug"}, stored.LabelsAdded)
	assert.Equal(t, types.ActionAddLabels, stored.LastActionKind)
	require.NotNil(t, stored.LastActionAt)

	require.NotNil(t, f.store.LastRun())
	assert.Equal(t, 1, f.store.TotalActions())
}

func TestRunDryRunSkipsExecutionAndBookkeeping(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "Crash on startup", Body: "panic", State: types.StateOpen},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = confidentResult(1, "bug")

	a := f.agent(t, true)
	rec, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.ActionsTaken, "dry-run actions still count toward run metrics")
	assert.Empty(t, f.tracker.addedLabels, "dry-run must not touch the tracker")
	assert.Contains(t, f.out.String(), "DRY-RUN:")

	stored := f.store.Get(1)
	require.NotNil(t, stored)
	assert.Empty(t, stored.LabelsAdded, "dry-run must not record executed actions")
	assert.Nil(t, stored.LastActionAt)
	assert.Equal(t, triage.ContentHash("Crash on startup", "panic"), stored.ContentHash)
}

func TestRunActionFailureAbandonsRemainingActions(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "Crash on startup", Body: "panic", State: types.StateOpen, CommentCount: 4},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.tracker.labelErr = errors.New("403 forbidden")

	result := confidentResult(1, "bug")
	result.ImplementationHints = []string{"check the init path"}
	f.classifier.results[1] = result

	a := f.agent(t, false)
	rec, err := a.Run(context.Background())
	require.NoError(t, err, "an action failure is not a run failure")

	assert.Equal(t, 1, rec.IssuesProcessed)
	assert.Equal(t, 0, rec.ActionsTaken)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "issue #1")
	assert.Empty(t, f.tracker.addedComments[1], "the context comment must be abandoned after the label failure")

	stored := f.store.Get(1)
	require.NotNil(t, stored)
	assert.Empty(t, stored.LabelsAdded)
	assert.Nil(t, stored.LastActionAt)
	assert.Equal(t, 4, stored.LastSeenCommentCount, "hash and comment count commit even after action failure")
	assert.Equal(t, triage.ContentHash("Crash on startup", "panic"), stored.ContentHash)
}

func TestRunPerIssueFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "first", Body: "a", State: types.StateOpen},
		{Number: 2, Title: "second", Body: "b", State: types.StateOpen},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}, 2: {}}

	failing := &failOnceClassifier{failNumber: 1}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a, err := New(Config{
		Tracker:         f.tracker,
		Classifier:      failing,
		Index:           f.index,
		Store:           f.store,
		Policy:          triage.DefaultPolicy(),
		MaxIssues:       20,
		CleanupInterval: 24 * time.Hour,
		Logger:          logger,
		Out:             f.out,
	})
	require.NoError(t, err)

	rec, runErr := a.Run(context.Background())
	require.NoError(t, runErr)

	assert.Equal(t, 1, rec.IssuesProcessed, "issue 2 still processes after issue 1 fails")
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "issue #1")
	assert.NotNil(t, f.store.Get(2))
}

type failOnceClassifier struct {
	failNumber int
}

func (f *failOnceClassifier) Classify(ctx context.Context, snap types.IssueSnapshot, similar []types.SimilarityMatch) (types.ClassificationResult, error) {
	if snap.Number == f.failNumber {
		return types.NeutralResult(snap.Number), errors.New("api blew up")
	}
	return types.NeutralResult(snap.Number), nil
}

func TestRunListFailureStillPersistsRun(t *testing.T) {
	f := newFixture(t)
	f.tracker.listErr = errors.New("github unavailable")
	f.tracker.openNumbers = map[int]struct{}{}

	a := f.agent(t, false)
	rec, err := a.Run(context.Background())
	require.Error(t, err)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "run failed")

	runs := f.store.RecentRuns(1)
	require.Len(t, runs, 1, "the failed run must still land in history")
	assert.Equal(t, rec.RunID, runs[0].RunID)
}

func TestRunMergesSimilarityBucketsIntoResult(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "Crash on startup", Body: "panic", State: types.StateOpen},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.index.matches[1] = []types.SimilarityMatch{
		{Number: 1, Title: "itself", Score: 1.0},
		{Number: 7, Title: "same crash", Score: 0.92},
		{Number: 8, Title: "similar crash", Score: 0.75},
	}
	f.classifier.results[1] = confidentResult(1)

	a := f.agent(t, false)
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f.tracker.addedComments[1], 1)
	comment := f.tracker.addedComments[1][0]
	assert.Contains(t, comment, "#7")
	assert.NotContains(t, comment, "#1", "the issue must not be flagged as its own duplicate")

	require.Len(t, f.tracker.addedLabels[1], 1)
	assert.Equal(t, []string{triage.LabelPotentialDuplicate}, f.tracker.addedLabels[1][0])
}

func TestRunSkipsUnchangedIssues(t *testing.T) {
	f := newFixture(t)
	snap := types.IssueSnapshot{Number: 1, Title: "stable", Body: "unchanged", State: types.StateOpen, CommentCount: 1}
	f.tracker.issues = []types.IssueSnapshot{snap}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = confidentResult(1, "bug")

	a := f.agent(t, false)
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{1}, f.classifier.calls)

	// Second run: same content, same comment count, nothing to do.
	rec, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rec.IssuesProcessed)
	assert.Equal(t, []int{1}, f.classifier.calls, "unchanged issue must not reach the classifier again")
}

func TestRunFetchesCommentsOnlyAfterPriorAction(t *testing.T) {
	f := newFixture(t)
	snap := types.IssueSnapshot{Number: 1, Title: "needs info", Body: "sparse", State: types.StateOpen}
	f.tracker.issues = []types.IssueSnapshot{snap}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = types.ClassificationResult{
		IssueNumber:          1,
		NeedsClarification:   true,
		MissingInfo:          []string{"logs"},
		ClarificationMessage: "Please attach logs.",
		OverallConfidence:    0.9,
	}

	a := f.agent(t, false)
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.tracker.commentFetches, "no prior action, no comment fetch")

	stored := f.store.Get(1)
	require.NotNil(t, stored)
	assert.True(t, stored.AwaitingResponse)
	assert.Equal(t, 1, stored.ClarificationAttempts)

	// A later snapshot of the same issue now has an action on record, so the
	// reprocessing decision needs the comment history.
	later := snap
	later.UpdatedAt = time.Now().Add(time.Hour)
	f.tracker.issues = []types.IssueSnapshot{later}
	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, f.tracker.commentFetches)
}

func TestRunClarificationCapAcrossRuns(t *testing.T) {
	f := newFixture(t)
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = types.ClassificationResult{
		IssueNumber:          1,
		NeedsClarification:   true,
		MissingInfo:          []string{"logs"},
		ClarificationMessage: "Please attach logs.",
		OverallConfidence:    0.9,
	}

	a := f.agent(t, false)

	base := time.Now()
	snap := types.IssueSnapshot{Number: 1, Title: "needs info", Body: "sparse", State: types.StateOpen}
	f.tracker.issues = []types.IssueSnapshot{snap}

	// First pass asks and records the attempt.
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	rec := f.store.Get(1)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.ClarificationAttempts)
	assert.True(t, rec.AwaitingResponse)
	assert.Len(t, f.tracker.addedComments[1], 1)

	// The reporter responds; the second pass settles the pending request and
	// asks one more time.
	f.tracker.comments[1] = []types.IssueComment{
		{Author: "reporter", Body: "here you go", CreatedAt: base.Add(30 * time.Minute)},
	}
	snap.UpdatedAt = base.Add(30 * time.Minute)
	snap.CommentCount = 1
	f.tracker.issues = []types.IssueSnapshot{snap}
	a.now = func() time.Time { return base.Add(2 * time.Hour) }

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	rec = f.store.Get(1)
	assert.Equal(t, 2, rec.ClarificationAttempts)
	assert.True(t, rec.AwaitingResponse)
	assert.Len(t, f.tracker.addedComments[1], 2)

	// Another response; the attempt cap is reached, so no third request.
	f.tracker.comments[1] = append(f.tracker.comments[1], types.IssueComment{
		Author: "reporter", Body: "anything else?", CreatedAt: base.Add(3 * time.Hour),
	})
	snap.UpdatedAt = base.Add(3 * time.Hour)
	snap.CommentCount = 2
	f.tracker.issues = []types.IssueSnapshot{snap}
	a.now = func() time.Time { return base.Add(5 * time.Hour) }

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	rec = f.store.Get(1)
	assert.Equal(t, 2, rec.ClarificationAttempts, "the attempt cap must hold")
	assert.False(t, rec.AwaitingResponse, "processing a response settles the pending request")
	assert.Len(t, f.tracker.addedComments[1], 2, "no clarification request beyond the cap")
}

func TestRunCleanupSweepsClosedIssues(t *testing.T) {
	f := newFixture(t)
	f.store.GetOrCreate(1, "h1")
	f.store.GetOrCreate(2, "h2")
	f.tracker.openNumbers = map[int]struct{}{1: {}}

	a := f.agent(t, false)
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, f.store.Get(1))
	assert.Nil(t, f.store.Get(2), "record for the closed issue should be swept")
}

func TestRunCleanupPostponedWhenOpenSetUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.GetOrCreate(2, "h2")
	f.tracker.openNumbersErr = errors.New("github unavailable")

	a := f.agent(t, false)
	_, err := a.Run(context.Background())
	require.NoError(t, err, "a failed sweep is postponed, not fatal")
	assert.NotNil(t, f.store.Get(2))
	assert.True(t, f.store.ShouldCleanup(24*time.Hour), "the sweep must still be due next run")
}

func TestRunSummaryOutput(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "Crash", Body: "panic", State: types.StateOpen},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = confidentResult(1, "bug")

	a := f.agent(t, true)
	rec, err := a.Run(context.Background())
	require.NoError(t, err)

	out := f.out.String()
	assert.Contains(t, out, "Run Summary")
	assert.Contains(t, out, rec.RunID)
	assert.Contains(t, out, fmt.Sprintf("Issues Processed: %d", rec.IssuesProcessed))
}

func TestRunBelowThresholdTakesNoAction(t *testing.T) {
	f := newFixture(t)
	f.tracker.issues = []types.IssueSnapshot{
		{Number: 1, Title: "vague report", Body: "something broke", State: types.StateOpen},
	}
	f.tracker.openNumbers = map[int]struct{}{1: {}}
	f.classifier.results[1] = types.ClassificationResult{
		IssueNumber:       1,
		SuggestedLabels:   []string{"bug"},
		LabelConfidence:   0.9,
		OverallConfidence: 0.5,
	}

	a := f.agent(t, false)
	rec, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.IssuesProcessed, "low confidence still counts as analyzed")
	assert.Equal(t, 0, rec.ActionsTaken)
	assert.Empty(t, f.tracker.addedLabels)
	assert.Empty(t, f.tracker.addedComments)
	require.NotNil(t, f.store.Get(1))
	assert.False(t, strings.Contains(f.out.String(), "✓"))
}
