package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) Index {
	t.Helper()
	idx, err := NewSQLiteIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestAppendAndByPattern(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: now, PatternHash: "abc", Target: "disk", Reliability: 0.8, CaseID: "c1"}))
	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: now.Add(time.Minute), PatternHash: "abc", Target: "disk", Reliability: 0.9, CaseID: "c2"}))
	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: now, PatternHash: "xyz", Target: "mem", Reliability: 0.5, CaseID: "c3"}))

	records, err := idx.ByPattern(ctx, "abc", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c2", records[0].CaseID, "most recent first")
}

func TestAverageReliability(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: now, PatternHash: "abc", Reliability: 0.8}))
	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: now, PatternHash: "abc", Reliability: 1.0}))

	avg, err := idx.AverageReliability(ctx, "abc", 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, avg, 0.001)

	avg, err = idx.AverageReliability(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)
}

func TestCountSince(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: base.Add(-time.Hour), PatternHash: "a"}))
	require.NoError(t, idx.Append(ctx, QueryRecord{AskedAt: base.Add(time.Hour), PatternHash: "b"}))

	count, err := idx.CountSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRebuildFromRecords(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	err := RebuildFromRecords(ctx, idx, []QueryRecord{
		{AskedAt: now, PatternHash: "a", CaseID: "1"},
		{AskedAt: now, PatternHash: "a", CaseID: "2"},
	})
	require.NoError(t, err)

	records, err := idx.ByPattern(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
