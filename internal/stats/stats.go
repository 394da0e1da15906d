// Package stats tracks Anna's own answer-quality metrics: a running
// global success rate, per-question-pattern improvement history, and
// an XP/level progression derived from reliability scores. None of
// this feeds the answer pipeline back — it's self-observation, the
// input the Insights and Recipe engines read to decide what Anna is
// good or bad at.
package stats

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/internal/mutation"
	"github.com/annassistant/anna/pkg/types"
)

// StatsDir is the default directory the engine's state is persisted
// under. A var, not a const, so tests can redirect it.
var StatsDir = "/var/lib/anna/stats"

// StrikeThreshold is the reliability below which a pattern takes a
// strike and its difficulty score rises.
const StrikeThreshold = 0.70

// MaxDifficulty caps PatternStats.DifficultyScore.
const MaxDifficulty = 1.0

// DifficultyPerStrike is how much a strike raises difficulty; a
// success lowers it by half that, so recovery is slower than decay.
const DifficultyPerStrike = 0.1

// titleLadder maps level to a title; a level beyond the ladder keeps
// the last title.
var titleLadder = []string{
	"Intern", "Associate", "Specialist", "Senior Specialist",
	"Expert", "Principal", "Staff Principal", "Distinguished Principal",
}

// LevelForXP derives a level from total XP via a monotonic square-root
// curve: level 1 requires 100 XP, level 4 requires 1600 XP, and so on.
// This is a chosen curve, not a recovered original formula.
func LevelForXP(totalXP uint64) uint8 {
	level := math.Floor(math.Sqrt(float64(totalXP) / 100.0))
	if level > 255 {
		level = 255
	}
	return uint8(level)
}

// TitleForLevel returns the title for a level, clamping to the top of
// the ladder for anything beyond it.
func TitleForLevel(level uint8) string {
	idx := int(level)
	if idx >= len(titleLadder) {
		idx = len(titleLadder) - 1
	}
	return titleLadder[idx]
}

func newProgression() types.Progression {
	return types.Progression{TotalXP: 0, Level: 0, Title: TitleForLevel(0)}
}

func addXP(p types.Progression, gained uint64) types.Progression {
	p.TotalXP += gained
	p.Level = LevelForXP(p.TotalXP)
	p.Title = TitleForLevel(p.Level)
	return p
}

// calculateXP awards XP only for a successful, reasonably reliable
// answer: base award is the reliability expressed out of 100, capped
// so a single lucky answer can't dominate progression.
func calculateXP(reliability float64, answerSuccess bool) types.XpGain {
	if !answerSuccess || reliability < StrikeThreshold {
		return types.XpGain{Reliability: reliability}
	}

	base := uint64(math.Round(reliability * 100))
	const maxXPPerAnswer = 100
	capped := base > maxXPPerAnswer
	if capped {
		base = maxXPPerAnswer
	}
	return types.XpGain{Base: base, Total: base, Reliability: reliability, WasCapped: capped}
}

func recordGlobal(g types.GlobalStats, reliability float64, latencyMs uint64, iterations uint32, now time.Time) types.GlobalStats {
	n := float64(g.TotalQuestions)
	newN := n + 1

	g.AvgReliability = (g.AvgReliability*n + reliability) / newN
	g.AvgLatencyMs = (g.AvgLatencyMs*n + float64(latencyMs)) / newN
	g.AvgIterations = (g.AvgIterations*n + float64(iterations)) / newN

	g.TotalQuestions++
	if reliability >= StrikeThreshold {
		g.TotalSuccessful++
	}
	g.LastQuestionTime = &now
	return g
}

func successRate(g types.GlobalStats) float64 {
	if g.TotalQuestions == 0 {
		return 0
	}
	return (float64(g.TotalSuccessful) / float64(g.TotalQuestions)) * 100
}

// NormalizeQuestion lowercases, strips punctuation, and collapses
// whitespace so "What is my CPU?" and "what   is my cpu" hash the same.
func NormalizeQuestion(question string) string {
	lower := strings.ToLower(question)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == '\t' || r == '\n' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// PatternFromQuestion builds a QuestionPattern, including its stable
// hash, from raw question text.
func PatternFromQuestion(question string) types.QuestionPattern {
	normalized := NormalizeQuestion(question)
	return types.QuestionPattern{
		Original:   question,
		Normalized: normalized,
		Hash:       hashPattern(normalized),
	}
}

func hashPattern(normalized string) string {
	return mutation.HashBytes([]byte(normalized))
}

func newPatternStats(hash string, reliability float64, latencyMs uint64, now time.Time) types.PatternStats {
	p := types.PatternStats{
		PatternHash:     hash,
		TimesSeen:       1,
		LastReliability: reliability,
		BestReliability: reliability,
		LastLatencyMs:   latencyMs,
		BestLatencyMs:   latencyMs,
		FirstSeen:       now,
		LastSeen:        now,
	}
	if reliability < StrikeThreshold {
		p.StrikeCount = 1
		p.DifficultyScore = DifficultyPerStrike
	}
	return p
}

func recordPattern(p types.PatternStats, reliability float64, latencyMs uint64, now time.Time) types.PatternStats {
	p.TimesSeen++

	if reliability > p.BestReliability || latencyMs < p.BestLatencyMs {
		p.HasImproved = true
	}
	if reliability > p.BestReliability {
		p.BestReliability = reliability
	}
	if latencyMs < p.BestLatencyMs {
		p.BestLatencyMs = latencyMs
	}

	if reliability < StrikeThreshold {
		p.StrikeCount++
		p.DifficultyScore = math.Min(p.DifficultyScore+DifficultyPerStrike, MaxDifficulty)
	} else {
		p.StrikeCount = 0
		p.DifficultyScore = math.Max(p.DifficultyScore-0.05, 0)
	}

	p.LastReliability = reliability
	p.LastLatencyMs = latencyMs
	p.LastSeen = now
	return p
}

// IsDifficult reports whether a pattern's difficulty score has reached
// 0.5.
func IsDifficult(p types.PatternStats) bool { return p.DifficultyScore >= 0.5 }

// NeedsRemediation reports whether a pattern has struck out enough
// times in a row to warrant the Fix-It or Recipe engine stepping in.
func NeedsRemediation(p types.PatternStats) bool { return p.StrikeCount >= 3 }

// Engine is the in-memory stats state plus its persistence path; all
// mutation goes through Engine.RecordAnswer so global, pattern, and XP
// updates never drift out of sync with each other.
type Engine struct {
	mu           sync.Mutex
	Progression  types.Progression
	Global       types.GlobalStats
	Patterns     map[string]types.PatternStats
	path         string
}

// New returns a fresh, empty engine.
func New() *Engine {
	return &Engine{
		Progression: newProgression(),
		Global:      types.GlobalStats{},
		Patterns:    map[string]types.PatternStats{},
	}
}

// DefaultPath is where Load/Save persist state by default.
func DefaultPath() string { return filepath.Join(StatsDir, "anna_stats.json") }

type engineState struct {
	Progression types.Progression             `json:"progression"`
	Global      types.GlobalStats             `json:"global"`
	Patterns    map[string]types.PatternStats `json:"patterns"`
}

// Load reads engine state from path, returning a fresh engine if the
// file doesn't exist.
func Load(path string) (*Engine, error) {
	e := New()
	e.path = path

	var state engineState
	if err := atomicfile.ReadJSON(path, &state); err != nil {
		if os.IsNotExist(err) {
			return e, nil
		}
		return nil, err
	}
	e.Progression = state.Progression
	e.Global = state.Global
	if state.Patterns != nil {
		e.Patterns = state.Patterns
	}
	return e, nil
}

// Save persists engine state to its load/construction path.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	path := e.path
	if path == "" {
		path = DefaultPath()
	}
	state := engineState{Progression: e.Progression, Global: e.Global, Patterns: e.Patterns}
	return atomicfile.WriteJSON(path, state)
}

// RecordAnswer folds one answered question into global stats, its
// pattern's history, and the XP/level progression, returning the XP
// awarded so a caller can report it.
func (e *Engine) RecordAnswer(question string, reliability float64, latencyMs uint64, iterations uint32, answerSuccess bool, now time.Time) types.XpGain {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Global = recordGlobal(e.Global, reliability, latencyMs, iterations, now)

	pattern := PatternFromQuestion(question)
	existing, ok := e.Patterns[pattern.Hash]
	patternImproved := false
	if ok {
		wasImproved := existing.HasImproved
		existing = recordPattern(existing, reliability, latencyMs, now)
		e.Patterns[pattern.Hash] = existing
		patternImproved = !wasImproved && existing.HasImproved
	} else {
		e.Patterns[pattern.Hash] = newPatternStats(pattern.Hash, reliability, latencyMs, now)
		e.Global.DistinctPatterns++
	}
	if patternImproved {
		e.Global.PatternsImproved++
	}

	gain := calculateXP(reliability, answerSuccess)
	if gain.Total > 0 {
		e.Progression = addXP(e.Progression, gain.Total)
	}
	return gain
}

// Snapshot returns a point-in-time view of progression, global stats,
// and the five most-seen patterns.
func (e *Engine) Snapshot(now time.Time) types.PerformanceSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	patterns := make([]types.PatternStats, 0, len(e.Patterns))
	for _, p := range e.Patterns {
		patterns = append(patterns, p)
	}
	for i := 1; i < len(patterns); i++ {
		for j := i; j > 0 && patterns[j].TimesSeen > patterns[j-1].TimesSeen; j-- {
			patterns[j], patterns[j-1] = patterns[j-1], patterns[j]
		}
	}
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}

	return types.PerformanceSnapshot{
		Progression:   e.Progression,
		Global:        e.Global,
		TopPatterns:   patterns,
		ImprovedCount: e.Global.PatternsImproved,
		Timestamp:     now,
	}
}

// SuccessRate is exported for callers that only want the percentage,
// without pulling a whole snapshot.
func (e *Engine) SuccessRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return successRate(e.Global)
}

