// Package caseindex keeps an append-only, keyword-searchable archive of
// closed Fix-It cases. Every FixTimeline a session produces is appended
// here once it completes, gets stuck, or fails, so a new session
// describing the same or a similar problem can be told "this looks like
// case #..." before spending a hypothesis cycle on it. There is no
// embedding backend: search is plain substring/term scoring over the
// problem statement and resolution summary, which is enough to surface
// near-duplicate wording without a model call.
package caseindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/pkg/types"
)

// Match is one archived case returned by Search, scored by term overlap
// against the query.
type Match struct {
	Case  types.FixTimeline `json:"case"`
	Score float64           `json:"score"`
}

// Index is an in-memory keyword index backed by one JSON file per
// archived case, so the archive survives a restart without a database.
type Index struct {
	mu  sync.RWMutex
	dir string
	all []types.FixTimeline
}

// Load reads every archived case under dir into memory. A missing
// directory is not an error; it is created lazily by the first Add.
func Load(dir string) (*Index, error) {
	idx := &Index{dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var timeline types.FixTimeline
		if err := atomicfile.ReadJSON(filepath.Join(dir, entry.Name()), &timeline); err != nil {
			continue // a corrupt single case file doesn't block the rest of the archive
		}
		idx.all = append(idx.all, timeline)
	}
	return idx, nil
}

// Add archives a closed case, persisting it under RequestID and adding
// it to the in-memory index immediately so a later Search in the same
// process sees it without a reload.
func (idx *Index) Add(timeline types.FixTimeline) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(idx.dir, timeline.RequestID+".json")
	if err := atomicfile.WriteJSON(path, timeline); err != nil {
		return err
	}
	idx.all = append(idx.all, timeline)
	return nil
}

// Search ranks archived cases by how many of query's terms appear in
// their problem statement, category, or resolution summary, returning
// the top limit matches with score > 0. Ties keep archive order (order of
// Add within a process; file-name order for cases read by Load). limit <= 0
// defaults to 5.
func (idx *Index) Search(_ context.Context, query string, limit int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	var matches []Match
	for _, c := range idx.all {
		haystack := strings.ToLower(c.ProblemStatement + " " + string(c.Category) + " " + c.ResolutionSummary)
		var score float64
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, Match{Case: c, Score: score / float64(len(terms))})
		}
	}

	// Stable sort by descending score (small archives; insertion sort is fine).
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Len returns how many cases are archived, for stats/diagnostics callers.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.all)
}
