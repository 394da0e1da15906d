package factstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

var ctx = context.Background()

func hostnameKey() types.FactKey {
	return types.FactKey{Kind: types.FactKeyHostname}
}

func installedPackageKey(name string) types.FactKey {
	return types.FactKey{Kind: types.FactKeyInstalledPackage, Qualifier: name}
}

func TestUpsertAndGetFresh(t *testing.T) {
	s := New("")
	key := hostnameKey()
	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueString, String: "anna-box"}, types.FactSource{Kind: types.SourceObservedProbe, ProbeID: "hostnamectl"}, 100)

	f, ok := s.GetFresh(ctx, key, time.Now())
	require.True(t, ok)
	assert.Equal(t, "anna-box", f.Value.String)
	assert.True(t, s.HasVerified(ctx, key))
}

func TestGetFreshReturnsFalseWhenStale(t *testing.T) {
	s := New("")
	key := installedPackageKey("firefox")
	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueBool, Bool: true}, types.FactSource{Kind: types.SourceObservedProbe}, 100)

	farFuture := time.Now().Add(types.TTLInstalledPackage + time.Hour)
	_, ok := s.GetFresh(ctx, key, farFuture)
	assert.False(t, ok)
}

func TestNeverPolicyIsNeverStale(t *testing.T) {
	s := New("")
	key := hostnameKey()
	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueString, String: "anna-box"}, types.FactSource{Kind: types.SourceObservedProbe}, 100)

	farFuture := time.Now().Add(365 * 24 * time.Hour)
	_, ok := s.GetFresh(ctx, key, farFuture)
	assert.True(t, ok)
}

func TestApplyLifecycleTransitionsActiveToStaleToArchived(t *testing.T) {
	s := New("")
	key := installedPackageKey("vim")
	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueBool, Bool: true}, types.FactSource{Kind: types.SourceObservedProbe}, 100)

	pastTTL := time.Now().Add(types.TTLInstalledPackage + time.Hour)
	s.ApplyLifecycle(pastTTL)
	f, _ := s.Get(ctx, key)
	assert.Equal(t, types.LifecycleStale, f.Lifecycle)

	past2xTTL := time.Now().Add(2*types.TTLInstalledPackage + time.Hour)
	s.ApplyLifecycle(past2xTTL)
	f, _ = s.Get(ctx, key)
	assert.Equal(t, types.LifecycleArchived, f.Lifecycle)
}

func TestPruneArchivedRemovesOnlyArchived(t *testing.T) {
	s := New("")
	key := installedPackageKey("htop")
	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueBool, Bool: true}, types.FactSource{Kind: types.SourceObservedProbe}, 100)

	s.ApplyLifecycle(time.Now().Add(2*types.TTLInstalledPackage + time.Hour))
	removed := s.PruneArchived()
	assert.Equal(t, 1, removed)
	assert.False(t, s.HasVerified(ctx, key))
}

func TestFactStatus(t *testing.T) {
	s := New("")
	key := hostnameKey()
	assert.Equal(t, StatusUnknown, s.FactStatus(ctx, key))

	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueString, String: "box"}, types.FactSource{Kind: types.SourceObservedProbe}, 100)
	assert.Equal(t, StatusKnown, s.FactStatus(ctx, key))

	s.Invalidate(ctx, key)
	assert.Equal(t, StatusStale, s.FactStatus(ctx, key))
}

func TestReverifyReturnsToActive(t *testing.T) {
	s := New("")
	key := hostnameKey()
	s.UpsertVerified(ctx, key, types.FactValue{Kind: types.ValueString, String: "box"}, types.FactSource{Kind: types.SourceObservedProbe}, 100)
	s.Invalidate(ctx, key)
	require.Equal(t, StatusStale, s.FactStatus(ctx, key))

	ok := s.Reverify(ctx, key, types.FactSource{Kind: types.SourceObservedProbe, ProbeID: "hostnamectl"})
	assert.True(t, ok)
	assert.Equal(t, StatusKnown, s.FactStatus(ctx, key))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.json")

	s := New(path)
	s.UpsertVerified(ctx, hostnameKey(), types.FactValue{Kind: types.ValueString, String: "anna-box"}, types.FactSource{Kind: types.SourceObservedProbe}, 100)
	s.UpsertVerified(ctx, installedPackageKey("firefox"), types.FactValue{Kind: types.ValueBool, Bool: true}, types.FactSource{Kind: types.SourceObservedProbe}, 100)
	require.NoError(t, s.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.HasVerified(ctx, hostnameKey()))
	assert.True(t, loaded.HasVerified(ctx, installedPackageKey("firefox")))
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, s.VerifiedFacts(ctx))
}

func TestUnverifiedFactIsNotSaved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.json")

	s := New(path)
	s.index(types.Fact{
		Key:       hostnameKey(),
		Value:     types.FactValue{Kind: types.ValueString, String: "box"},
		Verified:  false,
		Lifecycle: types.LifecycleActive,
	})
	require.NoError(t, s.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.HasVerified(ctx, hostnameKey()))
}

func TestSemanticLinksAreNonOwning(t *testing.T) {
	s := New("")
	from := hostnameKey()
	to := installedPackageKey("firefox")
	s.AddLink(types.SemanticLink{From: from, To: to, Relation: types.RelationRelatedTopic, Strength: 0.5})

	links := s.LinksFrom(from)
	require.Len(t, links, 1)
	assert.Equal(t, to, links[0].To)
}

func TestCategoryForProjectsPolicy(t *testing.T) {
	assert.Equal(t, types.CategoryStatic, CategoryFor(types.StalenessPolicy{Kind: types.PolicyNever}))
	assert.Equal(t, types.CategoryVolatile, CategoryFor(types.StalenessPolicy{Kind: types.PolicySession}))
	assert.Equal(t, types.CategoryStatic, CategoryFor(types.DefaultPolicyFor(types.FactKeyInstalledPackage)))
	assert.Equal(t, types.CategorySemiStatic, CategoryFor(types.DefaultPolicyFor(types.FactKeyNetworkPrimaryIface)))
}
