// Package types defines Recall's core data model: memories, entities,
// relations/facts with three-timestamp semantics, foreshadowing items,
// persistent-context items, core settings, and contradictions.
package types

import "time"

// Role is who produced a Memory.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Priority governs retention and context-budget trimming order.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
	PriorityLow      Priority = "LOW"
	PriorityEphemeral Priority = "EPHEMERAL"
)

// EntityRef is a lightweight pointer to an Entity by its unique key.
type EntityRef struct {
	Name string `json:"name"`
	Type EntityType `json:"type"`
}

// Key returns the same (type, name) identity string as the Entity it
// points to.
func (r EntityRef) Key() string { return string(r.Type) + ":" + r.Name }

// Memory is one stored utterance/fact carrier. Immutable after dedup
// resolution. Tombstoned is set only on the L2 copy that a delete then
// drops, so no retained copy carries it.
type Memory struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Role        Role              `json:"role"`
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id"`
	CharacterID string            `json:"character_id,omitempty"`
	TurnSeq     int64             `json:"turn_seq"`
	Embedding   []float32         `json:"embedding,omitempty"`
	Tokens      []string          `json:"tokens,omitempty"`
	Entities    []EntityRef       `json:"entities,omitempty"`
	Source      string            `json:"source,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Category    string            `json:"category,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Priority    Priority          `json:"priority"`
	CreatedAt   int64             `json:"created_at"`
	Tombstoned  bool              `json:"tombstoned,omitempty"`
	AliasOf     string            `json:"alias_of,omitempty"`
	MentionCount int              `json:"mention_count,omitempty"`
	// Extras carries caller-defined fields the schema does not name yet,
	// so new integrations can attach data without a migration.
	Extras      map[string]string `json:"extras,omitempty"`
}

// EntityType is the closed set of entity kinds.
type EntityType string

const (
	EntityPerson  EntityType = "PERSON"
	EntityPlace   EntityType = "PLACE"
	EntityOrg     EntityType = "ORG"
	EntityObject  EntityType = "OBJECT"
	EntityConcept EntityType = "CONCEPT"
	EntityCustom  EntityType = "CUSTOM"
)

// Entity is a normalized named thing. (Name, Type) is its unique key.
type Entity struct {
	Name           string            `json:"name"`
	Type           EntityType        `json:"type"`
	Aliases        []string          `json:"aliases,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	CreatedAt      int64             `json:"created_at"`
	LastMentionedAt int64            `json:"last_mentioned_at"`
	MentionCount   int               `json:"mention_count"`
}

// Key returns the unique (name, type) identity string for an entity.
func (e Entity) Key() string { return string(e.Type) + ":" + e.Name }

// FactStatus is a Relation's lifecycle state.
type FactStatus string

const (
	FactActive     FactStatus = "ACTIVE"
	FactSuperseded FactStatus = "SUPERSEDED"
	FactRejected   FactStatus = "REJECTED"
)

// Relation (aka Fact) links a subject entity to an object entity or literal
// via a predicate, carrying the three distinct timestamps described in the
// data model: fact_time (T1, true in-world), knowledge_time (T2, learned),
// system_time (T3, written).
type Relation struct {
	ID            string     `json:"id"`
	Subject       EntityRef  `json:"subject"`
	Predicate     string     `json:"predicate"`
	Object        EntityRef  `json:"object,omitempty"`
	ObjectLiteral string     `json:"object_literal,omitempty"`
	FactTime      *int64     `json:"fact_time,omitempty"`
	KnowledgeTime int64      `json:"knowledge_time"`
	SystemTime    int64      `json:"system_time"`
	Confidence    float64    `json:"confidence"`
	SourceMemoryIDs []string `json:"source_memory_ids,omitempty"`
	Status        FactStatus `json:"status"`
	SupersededBy  string     `json:"superseded_by,omitempty"`
}

// Triple returns the (subject, predicate, object) identity used to detect
// conflicting ACTIVE facts.
func (r Relation) Triple() string {
	obj := r.Object.Name
	if obj == "" {
		obj = r.ObjectLiteral
	}
	return r.Subject.Key() + "|" + r.Predicate + "|" + obj
}

// ForeshadowingState is the lifecycle of a planted foreshadowing item.
type ForeshadowingState string

const (
	ForeshadowingPlanted   ForeshadowingState = "PLANTED"
	ForeshadowingDeveloping ForeshadowingState = "DEVELOPING"
	ForeshadowingResolved  ForeshadowingState = "RESOLVED"
	ForeshadowingAbandoned ForeshadowingState = "ABANDONED"
)

// Foreshadowing is a planted narrative thread tracked per character.
type Foreshadowing struct {
	ID              string             `json:"id"`
	CharacterID     string             `json:"character_id"`
	Content         string             `json:"content"`
	Importance      float64            `json:"importance"`
	State           ForeshadowingState `json:"state"`
	RelatedEntities []EntityRef        `json:"related_entities,omitempty"`
	CreatedAt       int64              `json:"created_at"`
	LastUpdateAt    int64              `json:"last_update_at"`
	Hints           []string           `json:"hints,omitempty"`
	Evidence        string             `json:"evidence,omitempty"`
	Embedding       []float32          `json:"embedding,omitempty"`
}

// PersistentContextType is one of the 15 closed tags.
type PersistentContextType string

const (
	PCUserIdentity     PersistentContextType = "user-identity"
	PCUserGoal         PersistentContextType = "user-goal"
	PCUserPreference   PersistentContextType = "user-preference"
	PCUserConstraint   PersistentContextType = "user-constraint"
	PCRelationship     PersistentContextType = "relationship"
	PCWorldFact        PersistentContextType = "world-fact"
	PCWorldRule        PersistentContextType = "world-rule"
	PCCharacterTrait   PersistentContextType = "character-trait"
	PCCharacterBackstory PersistentContextType = "character-backstory"
	PCLocation         PersistentContextType = "location"
	PCOrganization     PersistentContextType = "organization"
	PCTimeline         PersistentContextType = "timeline"
	PCOpenThread       PersistentContextType = "open-thread"
	PCEmotionalState   PersistentContextType = "emotional-state"
	PCCustom           PersistentContextType = "custom"
)

// AllPersistentContextTypes lists the 15 closed tags in a stable order.
var AllPersistentContextTypes = []PersistentContextType{
	PCUserIdentity, PCUserGoal, PCUserPreference, PCUserConstraint,
	PCRelationship, PCWorldFact, PCWorldRule, PCCharacterTrait,
	PCCharacterBackstory, PCLocation, PCOrganization, PCTimeline,
	PCOpenThread, PCEmotionalState, PCCustom,
}

// PersistentContextItem is a durable fact about the user or the world.
type PersistentContextItem struct {
	ID         string                `json:"id"`
	Type       PersistentContextType `json:"type"`
	Content    string                `json:"content"`
	Confidence float64               `json:"confidence"`
	LastSeenAt int64                 `json:"last_seen_at"`
	Embedding  []float32             `json:"embedding,omitempty"`
	UserID     string                `json:"user_id"`
	SessionID  string                `json:"session_id"`
	Archived   bool                  `json:"archived,omitempty"`
}

// CoreSettings is L0: static overrides loaded once per session, read-only
// during a request.
type CoreSettings struct {
	CharacterCard    string   `json:"character_card,omitempty"`
	Worldbook        string   `json:"worldbook,omitempty"`
	WritingStyle     string   `json:"writing_style,omitempty"`
	AbsoluteRules    []string `json:"absolute_rules,omitempty"`
	CodingConventions string  `json:"coding_conventions,omitempty"`
}

// ContradictionKind is the category of conflicting facts.
type ContradictionKind string

const (
	ContradictionAttribute   ContradictionKind = "ATTRIBUTE"
	ContradictionRelationship ContradictionKind = "RELATIONSHIP"
	ContradictionState       ContradictionKind = "STATE"
	ContradictionTimeline    ContradictionKind = "TIMELINE"
	ContradictionRule        ContradictionKind = "RULE"
)

// ResolutionStrategy is how a detected contradiction gets resolved.
type ResolutionStrategy string

const (
	ResolveSupersede ResolutionStrategy = "SUPERSEDE"
	ResolveCoexist   ResolutionStrategy = "COEXIST"
	ResolveReject    ResolutionStrategy = "REJECT"
	ResolveManual    ResolutionStrategy = "MANUAL"
)

// Contradiction records two conflicting facts and how they were, or will
// be, resolved.
type Contradiction struct {
	ID         string             `json:"id"`
	FactA      string             `json:"fact_a_ref"`
	FactB      string             `json:"fact_b_ref"`
	Kind       ContradictionKind  `json:"kind"`
	Strategy   ResolutionStrategy `json:"strategy"`
	Resolved   bool               `json:"resolved"`
	ResolvedAt *int64             `json:"resolved_at,omitempty"`
}

// NowMillis is the single place Recall reads wall-clock time, so tests can
// substitute a fixed clock by constructing timestamps directly instead.
func NowMillis() int64 { return time.Now().UnixMilli() }
