package stats

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForXPFollowsSquareRootCurve(t *testing.T) {
	assert.Equal(t, uint8(0), LevelForXP(0))
	assert.Equal(t, uint8(1), LevelForXP(100))
	assert.Equal(t, uint8(4), LevelForXP(1600))
}

func TestTitleForLevelClampsAtTopOfLadder(t *testing.T) {
	assert.Equal(t, "Intern", TitleForLevel(0))
	assert.Equal(t, titleLadder[len(titleLadder)-1], TitleForLevel(255))
}

func TestNormalizeQuestionIsCaseAndWhitespaceInsensitive(t *testing.T) {
	a := NormalizeQuestion("What is my CPU?")
	b := NormalizeQuestion("what   is  my   CPU?")
	assert.Equal(t, a, b)
}

func TestPatternFromQuestionHashIsStable(t *testing.T) {
	p1 := PatternFromQuestion("What is my CPU?")
	p2 := PatternFromQuestion("WHAT IS MY CPU?")
	assert.Equal(t, p1.Hash, p2.Hash)
}

func TestEngineRecordAnswerAwardsXPOnlyAboveThreshold(t *testing.T) {
	e := New()
	now := time.Unix(1700000000, 0)

	gain := e.RecordAnswer("bad answer", 0.30, 5000, 5, true, now)
	assert.Equal(t, uint64(0), gain.Total)
	assert.Equal(t, uint64(0), e.Progression.TotalXP)

	gain = e.RecordAnswer("good answer", 0.90, 1000, 1, true, now)
	assert.Greater(t, gain.Total, uint64(0))
	assert.Greater(t, e.Progression.TotalXP, uint64(0))
}

func TestEngineRecordAnswerTracksPatternImprovement(t *testing.T) {
	e := New()
	now := time.Unix(1700000000, 0)

	e.RecordAnswer("What is my CPU?", 0.70, 2000, 1, true, now)
	e.RecordAnswer("What is my CPU?", 0.90, 1500, 1, true, now.Add(time.Minute))

	require.Equal(t, uint64(1), e.Global.DistinctPatterns)
	assert.Equal(t, uint64(1), e.Global.PatternsImproved)
}

func TestEngineGlobalStatsSuccessRate(t *testing.T) {
	e := New()
	now := time.Unix(1700000000, 0)

	e.RecordAnswer("q1", 0.90, 500, 1, true, now)
	e.RecordAnswer("q2", 0.80, 500, 1, true, now)
	e.RecordAnswer("q3", 0.50, 500, 1, true, now)
	e.RecordAnswer("q4", 0.40, 500, 1, true, now)

	assert.InDelta(t, 50.0, e.SuccessRate(), 0.01)
}

func TestPatternNeedsRemediationAfterThreeStrikes(t *testing.T) {
	e := New()
	now := time.Unix(1700000000, 0)

	for i := 0; i < 3; i++ {
		e.RecordAnswer("hard question", 0.40, 1000, 3, true, now)
	}

	pattern := PatternFromQuestion("hard question")
	p := e.Patterns[pattern.Hash]
	assert.True(t, NeedsRemediation(p))
	assert.InDelta(t, 0.3, p.DifficultyScore, 0.001) // 0.1 per strike; IsDifficult needs 0.5
}

func TestEngineSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")

	e := New()
	e.path = path
	now := time.Unix(1700000000, 0)
	e.RecordAnswer("persisted question", 0.85, 900, 1, true, now)
	require.NoError(t, e.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, e.Global.TotalQuestions, loaded.Global.TotalQuestions)
	assert.Equal(t, e.Progression.TotalXP, loaded.Progression.TotalXP)
}

func TestLoadReturnsFreshEngineWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	e, err := Load(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e.Global.TotalQuestions)
}
