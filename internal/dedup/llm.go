package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/llmbackend"
)

// restatementVerdict is the structured response the grey-band prompt asks
// the model to emit.
type restatementVerdict struct {
	IsRestatement bool   `json:"is_restatement"`
	Reasoning     string `json:"reasoning"`
}

// confirmRestatement asks the chat backend whether candidate restates
// existing, the stage-3 tiebreaker for the shrinking grey band between
// SemLo and SemHi.
func confirmRestatement(ctx context.Context, chatter llmbackend.Chatter, existing, candidate string) (bool, error) {
	if chatter == nil {
		return false, errs.New(errs.InvalidArgument, "LLM dedup confirmation requires a configured chatter")
	}

	prompt := fmt.Sprintf(
		"Memory A: %q\nMemory B: %q\n"+
			"Is B a restatement of A (same fact, different wording) rather than new information? "+
			"Respond with a single JSON object: {\"is_restatement\":true|false,\"reasoning\":\"...\"}.",
		existing, candidate,
	)

	result, err := chatter.Chat(ctx, []llmbackend.Message{
		{Role: "user", Content: prompt},
	}, 128)
	if err != nil {
		return false, err
	}

	verdict, err := parseRestatementVerdict(result.Text)
	if err != nil {
		return false, err
	}
	return verdict.IsRestatement, nil
}

// parseRestatementVerdict decodes the model's JSON response, repairing it
// with jsonrepair when it's near-valid but not strictly parseable.
func parseRestatementVerdict(text string) (restatementVerdict, error) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(text), "```"), "```json"))

	var v restatementVerdict
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return v, nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return restatementVerdict{}, errs.Wrap(errs.IndexCorrupted, "dedup verdict not valid JSON", err)
	}

	fixed, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return restatementVerdict{}, errs.Wrap(errs.IndexCorrupted, "dedup verdict JSON repair failed", repairErr)
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return restatementVerdict{}, errs.Wrap(errs.IndexCorrupted, "dedup verdict still invalid after repair", err)
	}
	return v, nil
}
