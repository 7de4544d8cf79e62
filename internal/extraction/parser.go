package extraction

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kittclouds/recall/internal/errs"
)

// parseResponse parses the raw model response into a Result, stripping a
// markdown code fence and falling back to jsonrepair when the JSON is
// close but not strictly valid — the same tolerance
// analyzers.unmarshalLLMJSON gives every other structured LLM call in
// this tree.
func parseResponse(raw string) (*Result, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return &Result{}, nil
	}

	var result Result
	err := json.Unmarshal([]byte(cleaned), &result)
	if err != nil {
		if _, ok := err.(*json.SyntaxError); !ok {
			return nil, errs.Wrap(errs.IndexCorrupted, "extraction response not valid JSON", err)
		}
		fixed, repairErr := jsonrepair.JSONRepair(cleaned)
		if repairErr != nil {
			return nil, errs.Wrap(errs.IndexCorrupted, "extraction response JSON repair failed", repairErr)
		}
		if err := json.Unmarshal([]byte(fixed), &result); err != nil {
			return nil, errs.Wrap(errs.IndexCorrupted, "extraction response unparseable after repair", err)
		}
	}

	return filterResult(&result), nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// filterResult drops malformed entries and fills in defaults, so callers
// downstream never see a blank label, an unrecognized kind, or a zero
// confidence.
func filterResult(r *Result) *Result {
	out := &Result{
		Entities:  make([]Entity, 0, len(r.Entities)),
		Relations: make([]Relation, 0, len(r.Relations)),
	}

	for _, e := range r.Entities {
		e.Label = strings.TrimSpace(e.Label)
		if e.Label == "" {
			continue
		}
		kindUpper := Kind(strings.ToUpper(string(e.Kind)))
		if !IsValidKind(string(kindUpper)) {
			continue
		}
		e.Kind = kindUpper
		if e.Confidence <= 0 {
			e.Confidence = 0.8
		}
		if len(e.Aliases) > 0 {
			cleaned := make([]string, 0, len(e.Aliases))
			for _, a := range e.Aliases {
				if a = strings.TrimSpace(a); a != "" {
					cleaned = append(cleaned, a)
				}
			}
			e.Aliases = cleaned
		}
		out.Entities = append(out.Entities, e)
	}

	for _, rel := range r.Relations {
		rel.Subject = strings.TrimSpace(rel.Subject)
		rel.Object = strings.TrimSpace(rel.Object)
		rel.RelationType = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(rel.RelationType), " ", "_"))
		if rel.Subject == "" || rel.Object == "" || rel.RelationType == "" {
			continue
		}
		if rel.Verb == "" {
			rel.Verb = strings.ToLower(strings.ReplaceAll(rel.RelationType, "_", " "))
		}
		if rel.Confidence <= 0 {
			rel.Confidence = 0.7
		}
		out.Relations = append(out.Relations, rel)
	}

	return out
}
