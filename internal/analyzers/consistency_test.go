package analyzers

import (
	"testing"

	"github.com/kittclouds/recall/internal/types"
)

func TestConsistencyChecker_FlagsProhibitionBreach(t *testing.T) {
	checker := NewConsistencyChecker(types.CoreSettings{
		AbsoluteRules: []string{"the character must never reveal the prophecy to outsiders"},
	})

	result := checker.Check("she calmly reveals the prophecy to the outsiders at the tavern")
	if result.IsConsistent {
		t.Fatal("expected a violation for text overlapping a prohibition rule")
	}
	if len(result.Violations) != 1 || result.Violations[0].Kind != RuleProhibition {
		t.Fatalf("expected one PROHIBITION violation, got %+v", result.Violations)
	}
}

func TestConsistencyChecker_NoViolationForUnrelatedOutput(t *testing.T) {
	checker := NewConsistencyChecker(types.CoreSettings{
		AbsoluteRules: []string{"the character must never reveal the prophecy to outsiders"},
	})

	result := checker.Check("the weather in the harbor town turned cold overnight")
	if !result.IsConsistent {
		t.Fatalf("expected no violations for unrelated text, got %+v", result.Violations)
	}
}

func TestConsistencyChecker_ConditionalRuleFlagsMissingConsequent(t *testing.T) {
	checker := NewConsistencyChecker(types.CoreSettings{
		AbsoluteRules: []string{"if the character is wounded, then she must limp"},
	})

	result := checker.Check("the character is badly wounded and walks normally into town")
	if result.IsConsistent {
		t.Fatal("expected a violation when the antecedent fires without the consequent")
	}
	if result.Violations[0].Kind != RuleConditional {
		t.Fatalf("expected CONDITIONAL violation, got %s", result.Violations[0].Kind)
	}
}

func TestConsistencyChecker_NoRulesAlwaysConsistent(t *testing.T) {
	checker := NewConsistencyChecker(types.CoreSettings{})
	result := checker.Check("anything goes here")
	if !result.IsConsistent {
		t.Fatal("a checker with no compiled rules should never flag a violation")
	}
}
