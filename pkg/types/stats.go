package types

import "time"

// Progression is Anna's level/XP/title state, derived entirely from
// TotalXP — level and title are never stored independently, so they
// can never drift out of sync with the XP total.
type Progression struct {
	TotalXP uint64 `json:"total_xp"`
	Level   uint8  `json:"level"`
	Title   string `json:"title"`
}

// XpGain is the breakdown of one answer's XP award, returned so a
// caller can explain "why 12 XP" rather than just reporting the number.
type XpGain struct {
	Base         uint64 `json:"base"`
	Total        uint64 `json:"total"`
	Reliability  float64 `json:"reliability"`
	WasCapped    bool    `json:"was_capped"`
}

// GlobalStats are Anna's running answer-quality counters.
type GlobalStats struct {
	TotalQuestions    uint64     `json:"total_questions"`
	TotalSuccessful   uint64     `json:"total_successful"`
	AvgReliability    float64    `json:"avg_reliability"`
	AvgLatencyMs      float64    `json:"avg_latency_ms"`
	AvgIterations     float64    `json:"avg_iterations"`
	LastQuestionTime  *time.Time `json:"last_question_time,omitempty"`
	DistinctPatterns  uint64     `json:"distinct_patterns"`
	PatternsImproved  uint64     `json:"patterns_improved"`
}

// PatternStats tracks one normalized question pattern's history.
type PatternStats struct {
	PatternHash    string    `json:"pattern_hash"`
	TimesSeen      uint32    `json:"times_seen"`
	LastReliability float64  `json:"last_reliability"`
	BestReliability float64  `json:"best_reliability"`
	LastLatencyMs  uint64    `json:"last_latency_ms"`
	BestLatencyMs  uint64    `json:"best_latency_ms"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	HasImproved    bool      `json:"has_improved"`
	StrikeCount    uint32    `json:"strike_count"`
	DifficultyScore float64  `json:"difficulty_score"`
}

// QuestionPattern is a question normalized for pattern matching, plus
// its stable hash.
type QuestionPattern struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
	Hash       string `json:"hash"`
}

// PerformanceSnapshot is a point-in-time view of Anna's progression and
// top question patterns, suitable for a status query response.
type PerformanceSnapshot struct {
	Progression   Progression    `json:"progression"`
	Global        GlobalStats    `json:"global"`
	TopPatterns   []PatternStats `json:"top_patterns"`
	ImprovedCount uint64         `json:"improved_count"`
	Timestamp     time.Time      `json:"timestamp"`
}
