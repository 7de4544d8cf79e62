// Package extraction turns free text into structured entities and facts
// with a single LLM call: it builds the extraction prompt, calls the
// configured chat backend, repairs and parses the response, and converts
// the result into the types Add's graph and store layers already know
// how to handle.
package extraction

import "github.com/kittclouds/recall/internal/types"

// Kind is the narrative entity vocabulary the extraction prompt asks the
// model to use. It is richer than types.EntityType so the prompt can
// guide the model with concrete categories; ToEntityType folds it down
// to the graph's closed set.
type Kind string

const (
	KindCharacter Kind = "CHARACTER"
	KindNPC       Kind = "NPC"
	KindLocation  Kind = "LOCATION"
	KindItem      Kind = "ITEM"
	KindFaction   Kind = "FACTION"
	KindEvent     Kind = "EVENT"
	KindConcept   Kind = "CONCEPT"
)

var validKinds = map[Kind]bool{
	KindCharacter: true,
	KindNPC:       true,
	KindLocation:  true,
	KindItem:      true,
	KindFaction:   true,
	KindEvent:     true,
	KindConcept:   true,
}

// IsValidKind reports whether s is a recognized Kind.
func IsValidKind(s string) bool {
	return validKinds[Kind(s)]
}

// ToEntityType folds the narrative Kind vocabulary down to the graph's
// closed EntityType set.
func (k Kind) ToEntityType() types.EntityType {
	switch k {
	case KindCharacter, KindNPC:
		return types.EntityPerson
	case KindLocation:
		return types.EntityPlace
	case KindFaction:
		return types.EntityOrg
	case KindItem:
		return types.EntityObject
	case KindEvent, KindConcept:
		return types.EntityConcept
	default:
		return types.EntityCustom
	}
}

// AllKinds lists every recognized Kind, for prompt construction.
var AllKinds = []string{
	string(KindCharacter), string(KindNPC), string(KindLocation),
	string(KindItem), string(KindFaction), string(KindEvent), string(KindConcept),
}

// RelationType constants the extraction prompt offers the model as a
// closed vocabulary. Predicates on the resulting types.Relation are
// lowercased, matching the graph's own naming convention
// (singularPredicates, dedup rules).
const (
	RelLeads          = "LEADS"
	RelMemberOf       = "MEMBER_OF"
	RelReportsTo      = "REPORTS_TO"
	RelCommands       = "COMMANDS"
	RelAlliedWith     = "ALLIED_WITH"
	RelEnemyOf        = "ENEMY_OF"
	RelFriendOf       = "FRIEND_OF"
	RelRivalOf        = "RIVAL_OF"
	RelBattles        = "BATTLES"
	RelDefeats        = "DEFEATS"
	RelKilledBy       = "KILLED_BY"
	RelCaptures       = "CAPTURES"
	RelCaptiveOf      = "CAPTIVE_OF"
	RelOwns           = "OWNS"
	RelCreated        = "CREATED"
	RelDestroyed      = "DESTROYED"
	RelUses           = "USES"
	RelLocatedIn      = "LOCATED_IN"
	RelTraveledTo     = "TRAVELED_TO"
	RelOriginatesFrom = "ORIGINATES_FROM"
	RelKnows          = "KNOWS"
	RelTeaches        = "TEACHES"
	RelLearnedFrom    = "LEARNED_FROM"
	RelSpeaksTo       = "SPEAKS_TO"
	RelMentions       = "MENTIONS"
	RelReveals        = "REVEALS"
	RelBecomes        = "BECOMES"
	RelTransformsInto = "TRANSFORMS_INTO"
	RelInheritsFrom   = "INHERITS_FROM"
	RelParticipatesIn = "PARTICIPATES_IN"
	RelWitnesses      = "WITNESSES"
	RelCauses         = "CAUSES"
	RelLivesIn        = "LIVES_IN"
	RelEmployedBy     = "EMPLOYED_BY"
	RelSpouseOf       = "SPOUSE_OF"
	RelMarriedTo      = "MARRIED_TO"
)

// AllRelationTypes lists every recognized relation type, for prompt
// construction.
var AllRelationTypes = []string{
	RelLeads, RelMemberOf, RelReportsTo, RelCommands,
	RelAlliedWith, RelEnemyOf, RelFriendOf, RelRivalOf,
	RelBattles, RelDefeats, RelKilledBy, RelCaptures, RelCaptiveOf,
	RelOwns, RelCreated, RelDestroyed, RelUses,
	RelLocatedIn, RelTraveledTo, RelOriginatesFrom,
	RelKnows, RelTeaches, RelLearnedFrom,
	RelSpeaksTo, RelMentions, RelReveals,
	RelBecomes, RelTransformsInto, RelInheritsFrom,
	RelParticipatesIn, RelWitnesses, RelCauses,
	RelLivesIn, RelEmployedBy, RelSpouseOf, RelMarriedTo,
}

// Entity is one entity the model recognized in the text.
type Entity struct {
	Label      string   `json:"label"`
	Kind       Kind     `json:"kind"`
	Aliases    []string `json:"aliases,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Relation is one relationship the model recognized between two entities
// named by Entity.Label.
type Relation struct {
	Subject        string  `json:"subject"`
	SubjectKind    string  `json:"subjectKind,omitempty"`
	Object         string  `json:"object"`
	ObjectKind     string  `json:"objectKind,omitempty"`
	Verb           string  `json:"verb"`
	RelationType   string  `json:"relationType"`
	Manner         string  `json:"manner,omitempty"`
	Location       string  `json:"location,omitempty"`
	Time           string  `json:"time,omitempty"`
	Recipient      string  `json:"recipient,omitempty"`
	Confidence     float64 `json:"confidence"`
	SourceSentence string  `json:"sourceSentence,omitempty"`
}

// Result is the unified output of a single extraction call.
type Result struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}
