// Package analyzers implements Recall's three domain analyzers: the
// foreshadowing tracker, the persistent-context tracker, and the
// consistency checker.
package analyzers

import (
	"encoding/json"
	"strings"

	"github.com/chewxy/math32"
	"github.com/kaptinlin/jsonrepair"

	"github.com/kittclouds/recall/internal/errs"
)

// unmarshalLLMJSON decodes an LLM response into v, stripping markdown code
// fences and falling back to jsonrepair when the model's JSON is near-valid
// but not strictly parseable.
func unmarshalLLMJSON(text string, v any) error {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(text), "```"), "```json"))

	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return errs.Wrap(errs.IndexCorrupted, "LLM response not valid JSON", err)
	}

	fixed, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return errs.Wrap(errs.IndexCorrupted, "LLM response JSON repair failed", repairErr)
	}
	return json.Unmarshal([]byte(fixed), v)
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math32.Sqrt(na) * math32.Sqrt(nb))
}
