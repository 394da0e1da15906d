// Package types defines the data model shared across Anna's components: the
// fact model, claim/evidence model, translator ticket, planner/interpreter
// envelopes, and the mutation case record. These types are the wire format
// for the on-disk JSON stores and the JSON-RPC transport alike, so every
// field carries an explicit json tag.
package types

import "time"

// FactKeyKind is the closed set of fact key variants.
type FactKeyKind string

const (
	FactKeyPreferredEditor        FactKeyKind = "preferred_editor"
	FactKeyBinaryAvailable        FactKeyKind = "binary_available"
	FactKeyEditorInstalled        FactKeyKind = "editor_installed"
	FactKeyNetworkPrimaryIface    FactKeyKind = "network_primary_interface"
	FactKeyNetworkPreference      FactKeyKind = "network_preference"
	FactKeyPackageManager         FactKeyKind = "package_manager"
	FactKeyInitSystem             FactKeyKind = "init_system"
	FactKeyInstalledPackage       FactKeyKind = "installed_package"
	FactKeyBootTimeBaseline       FactKeyKind = "boot_time_baseline"
	FactKeyDesktop                FactKeyKind = "desktop"
	FactKeyGpuPresent             FactKeyKind = "gpu_present"
	FactKeyHostname               FactKeyKind = "hostname"
	FactKeyKernel                 FactKeyKind = "kernel"
	FactKeyUnitExists              FactKeyKind = "unit_exists"
	FactKeyMountExists             FactKeyKind = "mount_exists"
)

// FactKey is a tagged variant: a kind plus an optional open-ended qualifier
// (e.g. InstalledPackage("firefox"), BinaryAvailable("rustc")).
type FactKey struct {
	Kind      FactKeyKind `json:"kind"`
	Qualifier string      `json:"qualifier,omitempty"`
}

// Display renders the key in its canonical sortable display form, e.g.
// "installed_package:firefox" or "hostname". Fact persistence sorts by this
// string so on-disk files diff deterministically.
func (k FactKey) Display() string {
	if k.Qualifier == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Qualifier
}

// FactSourceKind is the closed set of fact provenance kinds.
type FactSourceKind string

const (
	SourceObservedProbe FactSourceKind = "observed_probe"
	SourceUserConfirmed FactSourceKind = "user_confirmed"
	SourceDerivedFrom   FactSourceKind = "derived_from"
	SourceKnowledgeBase FactSourceKind = "knowledge_base"
	SourceConfig        FactSourceKind = "config"
	SourceInferred      FactSourceKind = "inferred"
)

// FactSource carries provenance detail specific to its kind. Only the fields
// relevant to Kind are populated; the others are zero.
type FactSource struct {
	Kind        FactSourceKind `json:"kind"`
	ProbeID     string         `json:"probe_id,omitempty"`
	OutputHash  string         `json:"output_hash,omitempty"`
	TranscriptID string        `json:"transcript_id,omitempty"`
	DerivedFrom []FactKey      `json:"derived_from,omitempty"`
}

// StalenessPolicyKind is the closed set of staleness policies.
type StalenessPolicyKind string

const (
	PolicyNever      StalenessPolicyKind = "never"
	PolicySession    StalenessPolicyKind = "session_only"
	PolicyTTLSeconds StalenessPolicyKind = "ttl_seconds"
)

// StalenessPolicy controls when a fact transitions Active -> Stale.
type StalenessPolicy struct {
	Kind       StalenessPolicyKind `json:"kind"`
	TTLSeconds uint64              `json:"ttl_seconds,omitempty"`
}

// Pinned TTL durations, ported verbatim from the original fact lifecycle.
const (
	TTLInstalledPackage = 7 * 24 * time.Hour
	TTLPreferredEditor  = 90 * 24 * time.Hour
	TTLBootTimeBaseline = 30 * 24 * time.Hour
	TTLNetwork          = 24 * time.Hour
	TTLBinaryAvailable  = 7 * 24 * time.Hour
	TTLEditorInstalled  = 7 * 24 * time.Hour
	TTLUnitExists       = 7 * 24 * time.Hour
	TTLMountExists      = 7 * 24 * time.Hour
	TTLDesktop          = 30 * 24 * time.Hour
)

// DefaultPolicyFor returns the pinned staleness policy for a fact key kind.
func DefaultPolicyFor(kind FactKeyKind) StalenessPolicy {
	switch kind {
	case FactKeyInstalledPackage:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLInstalledPackage.Seconds())}
	case FactKeyPreferredEditor:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLPreferredEditor.Seconds())}
	case FactKeyBootTimeBaseline:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLBootTimeBaseline.Seconds())}
	case FactKeyNetworkPrimaryIface, FactKeyNetworkPreference:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLNetwork.Seconds())}
	case FactKeyBinaryAvailable:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLBinaryAvailable.Seconds())}
	case FactKeyEditorInstalled:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLEditorInstalled.Seconds())}
	case FactKeyUnitExists:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLUnitExists.Seconds())}
	case FactKeyMountExists:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLMountExists.Seconds())}
	case FactKeyDesktop:
		return StalenessPolicy{Kind: PolicyTTLSeconds, TTLSeconds: uint64(TTLDesktop.Seconds())}
	case FactKeyInitSystem, FactKeyPackageManager, FactKeyHostname, FactKeyKernel, FactKeyGpuPresent:
		return StalenessPolicy{Kind: PolicyNever}
	default:
		return StalenessPolicy{Kind: PolicyNever}
	}
}

// FactLifecycle is the closed set of fact lifecycle states.
type FactLifecycle string

const (
	LifecycleActive   FactLifecycle = "active"
	LifecycleStale    FactLifecycle = "stale"
	LifecycleArchived FactLifecycle = "archived"
)

// FactValueKind is the closed set of typed fact payload kinds.
type FactValueKind string

const (
	ValueString     FactValueKind = "string"
	ValueInt        FactValueKind = "int"
	ValueBool       FactValueKind = "bool"
	ValueDuration   FactValueKind = "duration"
	ValuePercentage FactValueKind = "percentage"
	ValueBytes      FactValueKind = "bytes"
	ValuePath       FactValueKind = "path"
	ValueList       FactValueKind = "list"
)

// FactValue is a closed tagged union over the fact payload types. Only the
// field matching Kind is meaningful.
type FactValue struct {
	Kind       FactValueKind `json:"kind"`
	String     string        `json:"string,omitempty"`
	Int        int64         `json:"int,omitempty"`
	Bool       bool          `json:"bool,omitempty"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	Percentage float64       `json:"percentage,omitempty"`
	Bytes      uint64        `json:"bytes,omitempty"`
	Path       string        `json:"path,omitempty"`
	List       []string      `json:"list,omitempty"`
}

// Fact is a typed, source-tagged key-value with lifecycle and freshness policy.
type Fact struct {
	Key            FactKey         `json:"key"`
	Value          FactValue       `json:"value"`
	Source         FactSource      `json:"source"`
	Confidence     uint8           `json:"confidence"`
	Lifecycle      FactLifecycle   `json:"lifecycle"`
	Policy         StalenessPolicy `json:"policy"`
	Verified       bool            `json:"verified"`
	CreatedAt      time.Time       `json:"created_at"`
	LastVerifiedAt time.Time       `json:"last_verified_at"`
}

// Usable reports whether the fact can be used for decisions: verified and
// currently Active.
func (f Fact) Usable() bool {
	return f.Verified && f.Lifecycle == LifecycleActive
}

// SemanticLinkRelation is the closed set of relations between two fact keys.
type SemanticLinkRelation string

const (
	RelationSameEntity   SemanticLinkRelation = "same_entity"
	RelationDependsOn    SemanticLinkRelation = "depends_on"
	RelationRelatedTopic SemanticLinkRelation = "related_topic"
	RelationImplies      SemanticLinkRelation = "implies"
	RelationConflicts    SemanticLinkRelation = "conflicts"
)

// SemanticLink connects two fact keys without owning either. Links live
// alongside the fact table, never inside a Fact, so no cycle can break
// ownership.
type SemanticLink struct {
	From     FactKey              `json:"from"`
	To       FactKey              `json:"to"`
	Relation SemanticLinkRelation `json:"relation"`
	Strength float64              `json:"strength"`
}

// TTLCategory is the TtlFact classification: a coarser freshness tier
// derived from the same staleness policy the Fact Store already owns. It is
// a read-only projection, not a second store (see design notes on the dual
// fact classification).
type TTLCategory string

const (
	CategoryStatic       TTLCategory = "static"
	CategorySemiStatic   TTLCategory = "semi_static"
	CategoryDynamic      TTLCategory = "dynamic"
	CategoryVolatile     TTLCategory = "volatile"
	CategoryUserProvided TTLCategory = "user_provided"
)

// CategoryTTL returns the nominal TTL associated with a TTLCategory.
func CategoryTTL(c TTLCategory) time.Duration {
	switch c {
	case CategoryStatic:
		return 7 * 24 * time.Hour
	case CategorySemiStatic:
		return 24 * time.Hour
	case CategoryDynamic:
		return time.Hour
	case CategoryVolatile:
		return 5 * time.Minute
	case CategoryUserProvided:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}
