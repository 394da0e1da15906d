// Package factstore persists validated facts with staleness policies and
// automatic lifecycle transitions. A fact moves Active -> Stale -> Archived
// based on its TTL policy and whether it has been re-verified; only
// verified facts are ever written to disk.
package factstore

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/pkg/types"
)

// Status is the outcome of checking a key against the store, folding
// lifecycle into the answer so callers don't need a separate freshness
// check.
type Status string

const (
	StatusKnown      Status = "known"
	StatusUnverified Status = "unverified"
	StatusStale      Status = "stale"
	StatusUnknown    Status = "unknown"
)

// wireFormat is the on-disk JSON shape: a sorted slice, not a map, so the
// file diffs deterministically across saves.
type wireFormat struct {
	Version int          `json:"version"`
	Facts   []types.Fact `json:"facts"`
	Links   []types.SemanticLink `json:"links,omitempty"`
}

// Store is the Fact Store: an in-memory table of facts backed by an
// atomically-written JSON file. All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	path  string
	facts map[types.FactKeyKind]map[string]types.Fact // kind -> qualifier -> fact
	links []types.SemanticLink
}

// New creates an empty, unpersisted store.
func New(path string) *Store {
	return &Store{
		path:  path,
		facts: make(map[types.FactKeyKind]map[string]types.Fact),
	}
}

// Load reads the store from path. A missing file yields an empty store,
// matching the original's "absence means no facts learned yet" semantics
// rather than an error.
func Load(path string) (*Store, error) {
	s := New(path)

	var wire wireFormat
	if err := atomicfile.ReadJSON(path, &wire); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	for _, f := range wire.Facts {
		s.index(f)
	}
	s.links = wire.Links
	return s, nil
}

// Save writes every verified fact to disk, sorted by display key for a
// deterministic diff.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var verified []types.Fact
	for _, byQualifier := range s.facts {
		for _, f := range byQualifier {
			if f.Verified {
				verified = append(verified, f)
			}
		}
	}
	sort.Slice(verified, func(i, j int) bool {
		return verified[i].Key.Display() < verified[j].Key.Display()
	})

	return atomicfile.WriteJSON(s.path, wireFormat{Version: 1, Facts: verified, Links: s.links})
}

func (s *Store) index(f types.Fact) {
	byQualifier, ok := s.facts[f.Key.Kind]
	if !ok {
		byQualifier = make(map[string]types.Fact)
		s.facts[f.Key.Kind] = byQualifier
	}
	byQualifier[f.Key.Qualifier] = f
}

func (s *Store) lookup(key types.FactKey) (types.Fact, bool) {
	byQualifier, ok := s.facts[key.Kind]
	if !ok {
		return types.Fact{}, false
	}
	f, ok := byQualifier[key.Qualifier]
	return f, ok
}

// Get returns the raw fact for key, regardless of lifecycle or verification.
func (s *Store) Get(ctx context.Context, key types.FactKey) (types.Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(key)
}

// GetFresh returns key's fact only if it is usable and not stale at now.
// Callers that need current data (not merely previously-verified data)
// should use this instead of Get.
func (s *Store) GetFresh(ctx context.Context, key types.FactKey, now time.Time) (types.Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.lookup(key)
	if !ok || !f.Usable() || isStale(f, now) {
		return types.Fact{}, false
	}
	return f, true
}

// UpsertVerified inserts or overwrites key with a freshly verified value.
func (s *Store) UpsertVerified(ctx context.Context, key types.FactKey, value types.FactValue, source types.FactSource, confidence uint8) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index(types.Fact{
		Key:            key,
		Value:          value,
		Source:         source,
		Confidence:     confidence,
		Lifecycle:      types.LifecycleActive,
		Policy:         types.DefaultPolicyFor(key.Kind),
		Verified:       true,
		CreatedAt:      now,
		LastVerifiedAt: now,
	})
}

// HasVerified reports whether key has a currently-usable fact.
func (s *Store) HasVerified(ctx context.Context, key types.FactKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.lookup(key)
	return ok && f.Usable()
}

// IsFresh reports whether key's fact is usable and not stale at now.
func (s *Store) IsFresh(ctx context.Context, key types.FactKey, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.lookup(key)
	return ok && f.Usable() && !isStale(f, now)
}

// Verify marks an existing fact as verified, resetting its staleness
// clock. Reports false if key is not present.
func (s *Store) Verify(ctx context.Context, key types.FactKey, source types.FactSource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(key)
	if !ok {
		return false
	}
	f.Verified = true
	f.Source = source
	f.Lifecycle = types.LifecycleActive
	f.LastVerifiedAt = time.Now().UTC()
	s.index(f)
	return true
}

// Remove deletes key outright.
func (s *Store) Remove(ctx context.Context, key types.FactKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byQualifier, ok := s.facts[key.Kind]; ok {
		delete(byQualifier, key.Qualifier)
	}
}

// VerifiedFacts returns every currently-usable fact.
func (s *Store) VerifiedFacts(ctx context.Context) []types.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Fact
	for _, byQualifier := range s.facts {
		for _, f := range byQualifier {
			if f.Usable() {
				out = append(out, f)
			}
		}
	}
	return out
}

// Clear empties the store in memory; it does not touch disk until Save is
// called.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = make(map[types.FactKeyKind]map[string]types.Fact)
}

// ApplyLifecycle advances Active facts past their TTL to Stale, and Stale
// facts past 2x their TTL to Archived. Call this once per request cycle or
// on a timer; it never runs implicitly inside a read.
func (s *Store) ApplyLifecycle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byQualifier := range s.facts {
		for q, f := range byQualifier {
			if f.Lifecycle == types.LifecycleActive && isStale(f, now) {
				f.Lifecycle = types.LifecycleStale
			}
			if f.Lifecycle == types.LifecycleStale && shouldArchive(f, now) {
				f.Lifecycle = types.LifecycleArchived
			}
			byQualifier[q] = f
		}
	}
}

// Invalidate marks key stale, e.g. after a failed re-verification attempt.
func (s *Store) Invalidate(ctx context.Context, key types.FactKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.lookup(key); ok {
		f.Lifecycle = types.LifecycleStale
		s.index(f)
	}
}

// Reverify re-verifies key with a new source, returning it to Active.
func (s *Store) Reverify(ctx context.Context, key types.FactKey, source types.FactSource) bool {
	return s.Verify(ctx, key, source)
}

// StaleFacts returns every fact currently in the Stale lifecycle state.
func (s *Store) StaleFacts(ctx context.Context) []types.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Fact
	for _, byQualifier := range s.facts {
		for _, f := range byQualifier {
			if f.Lifecycle == types.LifecycleStale {
				out = append(out, f)
			}
		}
	}
	return out
}

// PruneArchived drops every Archived fact and returns how many were removed.
func (s *Store) PruneArchived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for kind, byQualifier := range s.facts {
		for q, f := range byQualifier {
			if f.Lifecycle == types.LifecycleArchived {
				delete(byQualifier, q)
				removed++
			}
		}
		if len(byQualifier) == 0 {
			delete(s.facts, kind)
		}
	}
	return removed
}

// FactStatus reports a key's lifecycle-aware status.
func (s *Store) FactStatus(ctx context.Context, key types.FactKey) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.lookup(key)
	switch {
	case !ok:
		return StatusUnknown
	case f.Usable():
		return StatusKnown
	case f.Lifecycle == types.LifecycleStale || f.Lifecycle == types.LifecycleArchived:
		return StatusStale
	case !f.Verified:
		return StatusUnverified
	default:
		return StatusStale
	}
}

// AddLink records a non-owning semantic relation between two fact keys.
// Links live alongside the fact table, never inside a Fact, so a cycle of
// relations cannot create a cycle of ownership.
func (s *Store) AddLink(link types.SemanticLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, link)
}

// LinksFrom returns every semantic link originating at key.
func (s *Store) LinksFrom(key types.FactKey) []types.SemanticLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.SemanticLink
	for _, l := range s.links {
		if l.From == key {
			out = append(out, l)
		}
	}
	return out
}

// CategoryFor projects a fact's staleness policy onto the coarser
// TTLCategory tiers. This is a read-only derived view, not a second
// writer: the Fact Store's policy table remains the single source of
// truth for freshness.
func CategoryFor(policy types.StalenessPolicy) types.TTLCategory {
	switch {
	case policy.Kind == types.PolicyNever:
		return types.CategoryStatic
	case policy.Kind == types.PolicySession:
		return types.CategoryVolatile
	case policy.TTLSeconds >= uint64((7 * 24 * time.Hour).Seconds()):
		return types.CategoryStatic
	case policy.TTLSeconds >= uint64((24 * time.Hour).Seconds()):
		return types.CategorySemiStatic
	case policy.TTLSeconds >= uint64(time.Hour.Seconds()):
		return types.CategoryDynamic
	default:
		return types.CategoryVolatile
	}
}

func isStale(f types.Fact, now time.Time) bool {
	switch f.Policy.Kind {
	case types.PolicyNever:
		return false
	case types.PolicySession:
		return true
	case types.PolicyTTLSeconds:
		if f.LastVerifiedAt.IsZero() {
			return !f.Verified
		}
		return now.Sub(f.LastVerifiedAt) > time.Duration(f.Policy.TTLSeconds)*time.Second
	default:
		return false
	}
}

func shouldArchive(f types.Fact, now time.Time) bool {
	if f.Policy.Kind != types.PolicyTTLSeconds || f.LastVerifiedAt.IsZero() {
		return false
	}
	return now.Sub(f.LastVerifiedAt) > 2*time.Duration(f.Policy.TTLSeconds)*time.Second
}
