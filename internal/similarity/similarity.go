// Package similarity maintains a SQLite-backed lexical index of seen issues
// and answers ranked similarity queries against it. Scores are cosine
// similarity over normalized term frequencies, always in [0, 1], which is
// what the triage bucketing expects.
package similarity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/stewardbot/steward/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS issues (
	number INTEGER PRIMARY KEY,
	title  TEXT NOT NULL,
	state  TEXT NOT NULL,
	terms  TEXT NOT NULL
);
`

// minTokenLength drops noise tokens; one- and two-letter fragments carry
// almost no signal for issue similarity.
const minTokenLength = 3

var tokenSplitRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Index is the persistent similarity index.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path. The special value
// ":memory:" creates an in-memory index, useful for tests.
func Open(path string) (*Index, error) {
	dsn := "file:" + path
	if path == ":memory:" {
		dsn = "file::memory:"
	} else {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create similarity db directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open similarity db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize similarity schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Add upserts the issue into the index so future queries can find it.
func (ix *Index) Add(ctx context.Context, snap types.IssueSnapshot) error {
	terms := termFrequencies(snap.Title + " " + snap.Body)
	encoded, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("encode terms for issue #%d: %w", snap.Number, err)
	}

	_, err = ix.db.ExecContext(ctx,
		`INSERT INTO issues (number, title, state, terms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(number) DO UPDATE SET title = excluded.title, state = excluded.state, terms = excluded.terms`,
		snap.Number, snap.Title, string(snap.State), string(encoded))
	if err != nil {
		return fmt.Errorf("index issue #%d: %w", snap.Number, err)
	}
	return nil
}

// Search returns up to limit indexed issues ranked by similarity to the
// snapshot, highest first. The snapshot's own number is not excluded here;
// the triage bucketing removes self-matches unconditionally.
func (ix *Index) Search(ctx context.Context, snap types.IssueSnapshot, limit int) ([]types.SimilarityMatch, error) {
	query := termFrequencies(snap.Title + " " + snap.Body)
	if len(query) == 0 {
		return nil, nil
	}

	rows, err := ix.db.QueryContext(ctx, `SELECT number, title, state, terms FROM issues`)
	if err != nil {
		return nil, fmt.Errorf("query similarity index: %w", err)
	}
	defer rows.Close()

	var matches []types.SimilarityMatch
	for rows.Next() {
		var (
			number  int
			title   string
			state   string
			encoded string
		)
		if err := rows.Scan(&number, &title, &state, &encoded); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		var terms map[string]float64
		if err := json.Unmarshal([]byte(encoded), &terms); err != nil {
			// A single bad row shouldn't poison the whole query.
			continue
		}
		score := cosine(query, terms)
		if score <= 0 {
			continue
		}
		matches = append(matches, types.SimilarityMatch{
			Number: number,
			Title:  title,
			State:  types.IssueState(state),
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// termFrequencies tokenizes text into a normalized term-frequency vector.
func termFrequencies(text string) map[string]float64 {
	tokens := tokenSplitRegex.Split(strings.ToLower(text), -1)

	counts := make(map[string]float64)
	total := 0.0
	for _, tok := range tokens {
		if len(tok) < minTokenLength {
			continue
		}
		counts[tok]++
		total++
	}
	if total == 0 {
		return nil
	}
	for tok := range counts {
		counts[tok] /= total
	}
	return counts
}

// cosine computes cosine similarity between two term-frequency vectors.
func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, av := range a {
		normA += av * av
		if bv, ok := b[tok]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
