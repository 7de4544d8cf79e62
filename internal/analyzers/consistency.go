package analyzers

import (
	"strings"

	"github.com/kittclouds/recall/internal/tokenize"
	"github.com/kittclouds/recall/internal/types"
)

// ViolationSeverity ranks how badly an output broke an absolute rule.
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "LOW"
	SeverityMedium   ViolationSeverity = "MEDIUM"
	SeverityHigh     ViolationSeverity = "HIGH"
	SeverityCritical ViolationSeverity = "CRITICAL"
)

// RuleKind is what shape of constraint a compiled rule checks.
type RuleKind string

const (
	RuleProhibition RuleKind = "PROHIBITION" // "never X"
	RuleRequirement RuleKind = "REQUIREMENT" // "always X"
	RuleRelationship RuleKind = "RELATIONSHIP"
	RuleAttribute    RuleKind = "ATTRIBUTE"
	RuleConditional  RuleKind = "CONDITIONAL" // "if X then Y"
)

var prohibitionCues = []string{"never", "don't", "do not", "must not", "cannot", "no "}
var requirementCues = []string{"always", "must", "should", "required to"}
var conditionalCues = []string{"if ", "when ", "unless "}

// CompiledRule is an absolute rule reduced to a keyword set and kind so an
// output string can be checked against it without another model call.
type CompiledRule struct {
	Raw      string
	Kind     RuleKind
	Keywords []string
	// Consequent is non-empty only for RuleConditional, holding the
	// keyword set of the "then" clause.
	Consequent []string
}

// ConsistencyChecker compiles a character's absolute rules once and checks
// candidate outputs against them.
type ConsistencyChecker struct {
	rules []CompiledRule
}

// NewConsistencyChecker compiles settings.AbsoluteRules into structured
// rule objects.
func NewConsistencyChecker(settings types.CoreSettings) *ConsistencyChecker {
	c := &ConsistencyChecker{}
	for _, raw := range settings.AbsoluteRules {
		c.rules = append(c.rules, compileRule(raw))
	}
	return c
}

func compileRule(raw string) CompiledRule {
	lower := strings.ToLower(raw)

	if idx := conditionalSplit(lower); idx >= 0 {
		antecedent := raw[:idx]
		consequent := raw[idx:]
		return CompiledRule{
			Raw:        raw,
			Kind:       RuleConditional,
			Keywords:   keywordsOf(antecedent),
			Consequent: keywordsOf(consequent),
		}
	}

	kind := RuleAttribute
	switch {
	case containsAny(lower, prohibitionCues):
		kind = RuleProhibition
	case containsAny(lower, requirementCues):
		kind = RuleRequirement
	case strings.Contains(lower, " is ") || strings.Contains(lower, " are ") || strings.Contains(lower, " has "):
		kind = RuleRelationship
	}

	return CompiledRule{
		Raw:      raw,
		Kind:     kind,
		Keywords: keywordsOf(raw),
	}
}

func conditionalSplit(lower string) int {
	for _, cue := range conditionalCues {
		if strings.HasPrefix(lower, cue) {
			if then := strings.Index(lower, " then "); then >= 0 {
				return then + len(" then ")
			}
			if comma := strings.Index(lower, ", "); comma >= 0 {
				return comma + 2
			}
		}
	}
	return -1
}

func keywordsOf(s string) []string {
	toks := tokenize.Normalize(s)
	seen := make(map[string]bool, len(toks))
	var out []string
	for _, t := range toks {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

// Violation is one absolute rule an output appears to have broken.
type Violation struct {
	Rule     string            `json:"rule"`
	Kind     RuleKind          `json:"kind"`
	Severity ViolationSeverity `json:"severity"`
	Evidence string            `json:"evidence"`
}

// CheckResult is the output of checking one candidate string.
type CheckResult struct {
	IsConsistent bool        `json:"is_consistent"`
	Violations   []Violation `json:"violations"`
}

// Check scans output for violations of every compiled rule. This is a
// deterministic keyword-overlap heuristic, not a semantic judgment: it
// flags outputs worth a closer look, not a proof of contradiction.
func (c *ConsistencyChecker) Check(output string) CheckResult {
	outputTokens := keywordsOf(output)
	tokenSet := make(map[string]bool, len(outputTokens))
	for _, t := range outputTokens {
		tokenSet[t] = true
	}

	var violations []Violation
	for _, rule := range c.rules {
		if v, ok := c.checkRule(rule, output, tokenSet); ok {
			violations = append(violations, v)
		}
	}

	return CheckResult{
		IsConsistent: len(violations) == 0,
		Violations:   violations,
	}
}

func (c *ConsistencyChecker) checkRule(rule CompiledRule, output string, tokenSet map[string]bool) (Violation, bool) {
	overlap := overlapCount(rule.Keywords, tokenSet)
	if overlap == 0 {
		return Violation{}, false
	}
	coverage := float64(overlap) / float64(len(rule.Keywords))

	switch rule.Kind {
	case RuleProhibition:
		// The subject matter of a "never X" rule showing up at all in the
		// output is the signal worth flagging; a human or an LLM judge
		// resolves whether it was actually violated.
		if coverage >= 0.5 {
			return Violation{Rule: rule.Raw, Kind: rule.Kind, Severity: SeverityHigh, Evidence: output}, true
		}
	case RuleConditional:
		if coverage >= 0.5 {
			consequentOverlap := overlapCount(rule.Consequent, tokenSet)
			if len(rule.Consequent) > 0 && consequentOverlap == 0 {
				return Violation{Rule: rule.Raw, Kind: rule.Kind, Severity: SeverityMedium, Evidence: output}, true
			}
		}
	case RuleRequirement, RuleRelationship, RuleAttribute:
		if coverage >= 0.75 {
			return Violation{Rule: rule.Raw, Kind: rule.Kind, Severity: SeverityLow, Evidence: output}, true
		}
	}
	return Violation{}, false
}

func overlapCount(keywords []string, tokenSet map[string]bool) int {
	n := 0
	for _, k := range keywords {
		if tokenSet[k] {
			n++
		}
	}
	return n
}
