// Package state persists per-issue triage bookkeeping and run history across
// steward runs. The whole state is a single JSON document written atomically
// at run completion; an unreadable document degrades to a fresh empty state
// rather than preventing startup.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/stewardbot/steward/internal/types"
)

// SchemaVersion is the persisted document version. Version 2 is the
// per-issue record model; the legacy processed-issue list shape is not read.
const SchemaVersion = 2

// maxRunHistory bounds the run history; the oldest entries are evicted first.
const maxRunHistory = 100

// IssueRecord is the persisted bookkeeping entity for one issue, keyed by
// issue number. Created on first analysis, updated after every processing
// pass, removed only by cleanup once the issue is no longer open.
type IssueRecord struct {
	ContentHash    string            `json:"content_hash"`
	LastAnalyzedAt time.Time         `json:"last_analyzed_at"`
	LastActionKind types.ActionKind  `json:"last_action_kind,omitempty"`
	LastActionAt   *time.Time        `json:"last_action_at,omitempty"`

	// LabelsAdded is every label the agent has ever applied to the issue.
	// The set only grows; a maintainer removing a label on the tracker side
	// suppresses re-adding but never clears the entry here.
	LabelsAdded []string `json:"labels_we_added"`

	LastSeenCommentCount  int      `json:"last_seen_comment_count"`
	AwaitingResponse      bool     `json:"awaiting_response"`
	ClarificationAttempts int      `json:"clarification_attempts"`
	RequestedInfo         []string `json:"requested_info,omitempty"`
}

// HasAddedLabel reports whether the agent previously applied the label.
func (r *IssueRecord) HasAddedLabel(label string) bool {
	for _, l := range r.LabelsAdded {
		if l == label {
			return true
		}
	}
	return false
}

func (r *IssueRecord) clone() *IssueRecord {
	out := *r
	out.LabelsAdded = append([]string(nil), r.LabelsAdded...)
	out.RequestedInfo = append([]string(nil), r.RequestedInfo...)
	return &out
}

// RunRecord captures the metrics of a single steward run. Immutable once
// appended to the history.
type RunRecord struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	IssuesProcessed int       `json:"issues_processed"`
	ActionsTaken    int       `json:"actions_taken"`
	DurationSeconds float64   `json:"duration_seconds"`
	Errors          []string  `json:"errors"`
}

// document is the durable on-disk shape. Timestamps round-trip losslessly
// through RFC 3339 via encoding/json.
type document struct {
	SchemaVersion int                  `json:"schema_version"`
	LastRun       *time.Time           `json:"last_run,omitempty"`
	LastCleanup   *time.Time           `json:"last_cleanup,omitempty"`
	IssueRecords  map[int]*IssueRecord `json:"issue_records"`
	RunHistory    []RunRecord          `json:"run_history"`
	TotalActions  int                  `json:"total_actions"`
}

func emptyDocument() document {
	return document{
		SchemaVersion: SchemaVersion,
		IssueRecords:  make(map[int]*IssueRecord),
	}
}

// Store manages the persistent triage state. It is not safe for concurrent
// use; runs against the same state file must be externally serialized.
type Store struct {
	path   string
	logger *slog.Logger
	doc    document
	now    func() time.Time
}

// NewStore loads the state document at path, or starts fresh when the file
// is missing or corrupt. Load failures are never fatal.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
	s.doc = s.load()
	return s
}

func (s *Store) load() document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read state file, starting fresh", "path", s.path, "error", err)
		} else {
			s.logger.Info("no existing state file, starting fresh", "path", s.path)
		}
		return emptyDocument()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("state file is corrupt, starting fresh", "path", s.path, "error", err)
		return emptyDocument()
	}
	if doc.SchemaVersion != SchemaVersion {
		s.logger.Warn("state file has unsupported schema version, starting fresh",
			"path", s.path, "version", doc.SchemaVersion, "supported", SchemaVersion)
		return emptyDocument()
	}
	if doc.IssueRecords == nil {
		doc.IssueRecords = make(map[int]*IssueRecord)
	}

	s.logger.Info("loaded state",
		"path", s.path,
		"issue_records", len(doc.IssueRecords),
		"run_history", len(doc.RunHistory))
	return doc
}

// Save writes the whole document atomically: serialize to a temp file in the
// same directory, then rename over the target.
func (s *Store) Save() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".steward-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Get returns a copy of the record for the issue, or nil when the issue has
// never been analyzed.
func (s *Store) Get(number int) *IssueRecord {
	rec, ok := s.doc.IssueRecords[number]
	if !ok {
		return nil
	}
	return rec.clone()
}

// GetOrCreate returns a copy of the record for the issue, creating it with
// the given content hash when absent.
func (s *Store) GetOrCreate(number int, contentHash string) *IssueRecord {
	if rec, ok := s.doc.IssueRecords[number]; ok {
		return rec.clone()
	}
	rec := &IssueRecord{
		ContentHash:    contentHash,
		LastAnalyzedAt: s.now(),
	}
	s.doc.IssueRecords[number] = rec
	return rec.clone()
}

// RecordUpdate is a partial update applied to an issue record. Zero-valued
// fields are left untouched.
type RecordUpdate struct {
	// ContentHash replaces the stored hash when non-empty (last write wins).
	ContentHash string
	// CommentCount replaces last_seen_comment_count when set.
	CommentCount *int
	// ActionKind records an executed action and stamps last_action_at.
	ActionKind types.ActionKind
	// LabelsAdded is unioned into the labels_we_added set.
	LabelsAdded []string
	// AwaitingResponse toggles the clarification flag. A transition into
	// awaiting_response=true increments clarification_attempts by one.
	AwaitingResponse *bool
	// RequestedInfo replaces the requested_info list when non-nil.
	RequestedInfo []string
}

// Update applies a partial update to the issue's record and recomputes
// last_analyzed_at. Updating a missing record logs a warning and is a no-op.
func (s *Store) Update(number int, u RecordUpdate) {
	rec, ok := s.doc.IssueRecords[number]
	if !ok {
		s.logger.Warn("update for unknown issue record, ignoring", "issue", number)
		return
	}

	now := s.now()
	rec.LastAnalyzedAt = now

	if u.ContentHash != "" {
		rec.ContentHash = u.ContentHash
	}
	if u.CommentCount != nil {
		rec.LastSeenCommentCount = *u.CommentCount
	}
	if u.ActionKind != "" {
		rec.LastActionKind = u.ActionKind
		t := now
		rec.LastActionAt = &t
	}
	if len(u.LabelsAdded) > 0 {
		rec.LabelsAdded = unionLabels(rec.LabelsAdded, u.LabelsAdded)
	}
	if u.AwaitingResponse != nil {
		if *u.AwaitingResponse && !rec.AwaitingResponse {
			rec.ClarificationAttempts++
		}
		rec.AwaitingResponse = *u.AwaitingResponse
	}
	if u.RequestedInfo != nil {
		rec.RequestedInfo = append([]string(nil), u.RequestedInfo...)
	}
}

// unionLabels merges b into a, keeping the result sorted and free of
// duplicates. Labels are never removed.
func unionLabels(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, l := range a {
		seen[l] = struct{}{}
	}
	for _, l := range b {
		seen[l] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Cleanup removes every record whose issue number is not in openNumbers and
// returns the removed count. last_cleanup is updated even when nothing was
// removed.
func (s *Store) Cleanup(openNumbers map[int]struct{}) int {
	removed := 0
	for number := range s.doc.IssueRecords {
		if _, open := openNumbers[number]; !open {
			delete(s.doc.IssueRecords, number)
			removed++
		}
	}
	now := s.now()
	s.doc.LastCleanup = &now
	if removed > 0 {
		s.logger.Info("cleaned up records for closed issues", "removed", removed)
	}
	return removed
}

// ShouldCleanup reports whether the cleanup interval has elapsed since the
// last sweep. A store that has never been swept is always due.
func (s *Store) ShouldCleanup(interval time.Duration) bool {
	if s.doc.LastCleanup == nil {
		return true
	}
	return s.now().Sub(*s.doc.LastCleanup) >= interval
}

// LastRun returns the start time of the most recently finished run, or nil.
func (s *Store) LastRun() *time.Time {
	if s.doc.LastRun == nil {
		return nil
	}
	t := *s.doc.LastRun
	return &t
}

// TotalActions returns the cumulative count of actions across all runs.
func (s *Store) TotalActions() int {
	return s.doc.TotalActions
}

// IssueCount returns the number of tracked issue records.
func (s *Store) IssueCount() int {
	return len(s.doc.IssueRecords)
}

// StartRun creates an in-memory run record with zeroed counters. Nothing is
// persisted until FinishRun.
func (s *Store) StartRun(runID string) *RunRecord {
	return &RunRecord{
		RunID:     runID,
		StartedAt: s.now(),
		Errors:    []string{},
	}
}

// FinishRun records the run: stamps last_run, accumulates the action
// counter, appends to the bounded history, and persists the whole state
// atomically.
func (s *Store) FinishRun(rec *RunRecord) error {
	t := rec.StartedAt
	s.doc.LastRun = &t
	s.doc.TotalActions += rec.ActionsTaken

	s.doc.RunHistory = append(s.doc.RunHistory, *rec)
	if len(s.doc.RunHistory) > maxRunHistory {
		s.doc.RunHistory = s.doc.RunHistory[len(s.doc.RunHistory)-maxRunHistory:]
	}

	return s.Save()
}

// RecentRuns returns up to n of the most recent run records, newest last.
func (s *Store) RecentRuns(n int) []RunRecord {
	history := s.doc.RunHistory
	if n <= 0 || n > len(history) {
		n = len(history)
	}
	out := make([]RunRecord, n)
	copy(out, history[len(history)-n:])
	return out
}
