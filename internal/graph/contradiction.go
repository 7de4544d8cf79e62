package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/types"
)

// ContradictionStrategy picks how the manager judges a newly-proposed fact
// against an existing ACTIVE fact on the same triple.
type ContradictionStrategy string

const (
	StrategyRule ContradictionStrategy = "RULE"
	StrategyLLM  ContradictionStrategy = "LLM"
	StrategyMixed ContradictionStrategy = "MIXED"
	StrategyAuto  ContradictionStrategy = "AUTO"
)

// ContradictionManager evaluates conflicting facts and decides how to
// resolve them. RULE applies deterministic attribute/relationship/timeline
// checks; LLM defers every judgment to the chat backend; MIXED runs RULE
// first and falls back to LLM when the rule layer can't classify the
// conflict; AUTO uses RULE for simple literal-valued attributes and MIXED
// for everything else.
type ContradictionManager struct {
	strategy ContradictionStrategy
	chatter  llmbackend.Chatter
	idSeq    func() string
}

// NewContradictionManager wires a strategy and an optional Chatter (nil is
// fine for StrategyRule, which never calls it).
func NewContradictionManager(strategy ContradictionStrategy, chatter llmbackend.Chatter, idSeq func() string) *ContradictionManager {
	return &ContradictionManager{strategy: strategy, chatter: chatter, idSeq: idSeq}
}

// Evaluate judges existing against incoming and returns the Contradiction
// record (kind, resolution strategy, ids of both facts) the graph should
// apply.
func (m *ContradictionManager) Evaluate(existing, incoming types.Relation) (types.Contradiction, error) {
	c := types.Contradiction{
		ID:    m.nextID(),
		FactA: existing.ID,
		FactB: incoming.ID,
	}

	switch m.strategy {
	case StrategyRule:
		c.Kind, c.Strategy = ruleJudge(existing, incoming)
	case StrategyLLM:
		kind, strat, err := m.llmJudge(existing, incoming)
		if err != nil {
			return types.Contradiction{}, err
		}
		c.Kind, c.Strategy = kind, strat
	case StrategyMixed:
		kind, strat, confident := ruleJudgeConfident(existing, incoming)
		if confident {
			c.Kind, c.Strategy = kind, strat
		} else {
			llmKind, llmStrat, err := m.llmJudge(existing, incoming)
			if err != nil {
				return types.Contradiction{}, err
			}
			c.Kind, c.Strategy = llmKind, llmStrat
		}
	case StrategyAuto:
		if isSimpleLiteralAttribute(existing, incoming) {
			c.Kind, c.Strategy = ruleJudge(existing, incoming)
		} else {
			kind, strat, confident := ruleJudgeConfident(existing, incoming)
			if confident {
				c.Kind, c.Strategy = kind, strat
			} else {
				llmKind, llmStrat, err := m.llmJudge(existing, incoming)
				if err != nil {
					return types.Contradiction{}, err
				}
				c.Kind, c.Strategy = llmKind, llmStrat
			}
		}
	default:
		c.Kind, c.Strategy = ruleJudge(existing, incoming)
	}

	return c, nil
}

func (m *ContradictionManager) nextID() string {
	if m.idSeq != nil {
		return m.idSeq()
	}
	return "contradiction"
}

// isSimpleLiteralAttribute reports whether both facts describe a literal
// (non-entity) attribute of the same subject, the one case AUTO trusts the
// deterministic rule layer with full confidence.
func isSimpleLiteralAttribute(existing, incoming types.Relation) bool {
	return existing.Object.Name == "" && incoming.Object.Name == "" &&
		existing.ObjectLiteral != "" && incoming.ObjectLiteral != ""
}

// ruleJudge runs the deterministic checks and always returns a verdict,
// defaulting to MANUAL when none of the specific checks fire.
func ruleJudge(existing, incoming types.Relation) (types.ContradictionKind, types.ResolutionStrategy) {
	kind, strategy, _ := ruleJudgeConfident(existing, incoming)
	return kind, strategy
}

// ruleJudgeConfident runs the same checks as ruleJudge but also reports
// whether the rule layer is confident in the verdict, so MIXED/AUTO know
// when to defer to the LLM instead.
func ruleJudgeConfident(existing, incoming types.Relation) (types.ContradictionKind, types.ResolutionStrategy, bool) {
	// Timeline: a newer fact_time always wins outright.
	if existing.FactTime != nil && incoming.FactTime != nil {
		if *incoming.FactTime > *existing.FactTime {
			return types.ContradictionTimeline, types.ResolveSupersede, true
		}
		if *incoming.FactTime < *existing.FactTime {
			return types.ContradictionTimeline, types.ResolveReject, true
		}
	}

	// Attribute: same literal-valued predicate, different literal value —
	// the newer knowledge_time wins.
	if existing.ObjectLiteral != "" && incoming.ObjectLiteral != "" {
		if existing.ObjectLiteral == incoming.ObjectLiteral {
			return types.ContradictionAttribute, types.ResolveCoexist, true
		}
		if incoming.KnowledgeTime >= existing.KnowledgeTime {
			return types.ContradictionAttribute, types.ResolveSupersede, true
		}
		return types.ContradictionAttribute, types.ResolveReject, true
	}

	// Relationship: same predicate, different target entity. One-to-one
	// relations (spouse, employer, owner) supersede; many-valued relations
	// (friend, visited, knows) coexist. The rule layer can't tell these
	// apart reliably, so it defers unless a whitelist of singular
	// predicates matches.
	if existing.Object.Name != "" && incoming.Object.Name != "" {
		if existing.Object.Key() == incoming.Object.Key() {
			return types.ContradictionRelationship, types.ResolveCoexist, true
		}
		if isSingularPredicate(existing.Predicate) {
			return types.ContradictionRelationship, types.ResolveSupersede, true
		}
		return types.ContradictionRelationship, types.ResolveCoexist, false
	}

	return types.ContradictionState, types.ResolveManual, false
}

var singularPredicates = map[string]bool{
	"spouse_of":   true,
	"married_to":  true,
	"employed_by": true,
	"owns":        true,
	"lives_in":    true,
	"leads":       true,
}

func isSingularPredicate(predicate string) bool {
	return singularPredicates[strings.ToLower(predicate)]
}

// llmVerdict is the structured response the judging prompt asks the model
// to emit.
type llmVerdict struct {
	Kind       string `json:"kind"`
	Strategy   string `json:"strategy"`
	Reasoning  string `json:"reasoning"`
}

func (m *ContradictionManager) llmJudge(existing, incoming types.Relation) (types.ContradictionKind, types.ResolutionStrategy, error) {
	if m.chatter == nil {
		return types.ContradictionState, types.ResolveManual, errs.New(errs.InvalidArgument, "LLM contradiction strategy requires a configured chatter")
	}

	prompt := fmt.Sprintf(
		"Two facts about the same subject/predicate conflict.\n"+
			"Existing fact: %s (fact_time=%s, known=%d)\n"+
			"New fact: %s (fact_time=%s, known=%d)\n"+
			"Classify the conflict kind (ATTRIBUTE, RELATIONSHIP, STATE, TIMELINE, or RULE) "+
			"and decide the resolution (SUPERSEDE, COEXIST, REJECT, or MANUAL). "+
			"Respond with a single JSON object: {\"kind\":...,\"strategy\":...,\"reasoning\":...}.",
		factDescription(existing), factTimeString(existing.FactTime), existing.KnowledgeTime,
		factDescription(incoming), factTimeString(incoming.FactTime), incoming.KnowledgeTime,
	)

	result, err := m.chatter.Chat(context.Background(), []llmbackend.Message{
		{Role: "user", Content: prompt},
	}, 256)
	if err != nil {
		return types.ContradictionState, types.ResolveManual, err
	}

	verdict, err := parseVerdict(result.Text)
	if err != nil {
		return types.ContradictionState, types.ResolveManual, err
	}

	kind := types.ContradictionKind(strings.ToUpper(verdict.Kind))
	strategy := types.ResolutionStrategy(strings.ToUpper(verdict.Strategy))
	if !validKind(kind) {
		kind = types.ContradictionState
	}
	if !validStrategy(strategy) {
		strategy = types.ResolveManual
	}
	return kind, strategy, nil
}

// parseVerdict decodes the model's JSON response, repairing it with
// jsonrepair when the model emits near-valid JSON (trailing commas, missing
// quotes, markdown fencing) rather than a strict syntax error.
func parseVerdict(text string) (llmVerdict, error) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(text), "```"), "```json"))

	var v llmVerdict
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return v, nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return llmVerdict{}, errs.Wrap(errs.IndexCorrupted, "contradiction verdict not valid JSON", err)
	}

	fixed, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return llmVerdict{}, errs.Wrap(errs.IndexCorrupted, "contradiction verdict JSON repair failed", repairErr)
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return llmVerdict{}, errs.Wrap(errs.IndexCorrupted, "contradiction verdict still invalid after repair", err)
	}
	return v, nil
}

func validKind(k types.ContradictionKind) bool {
	switch k {
	case types.ContradictionAttribute, types.ContradictionRelationship, types.ContradictionState,
		types.ContradictionTimeline, types.ContradictionRule:
		return true
	}
	return false
}

func validStrategy(s types.ResolutionStrategy) bool {
	switch s {
	case types.ResolveSupersede, types.ResolveCoexist, types.ResolveReject, types.ResolveManual:
		return true
	}
	return false
}

func factDescription(r types.Relation) string {
	obj := r.Object.Name
	if obj == "" {
		obj = r.ObjectLiteral
	}
	return r.Subject.Name + " " + r.Predicate + " " + obj
}

func factTimeString(t *int64) string {
	if t == nil {
		return "unknown"
	}
	return strconv.FormatInt(*t, 10)
}
