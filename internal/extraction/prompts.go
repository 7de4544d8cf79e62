package extraction

import (
	"fmt"
	"strings"
)

// MaxTextLength caps how much text one extraction call sends to the
// model, keeping the prompt inside a safe token budget.
const MaxTextLength = 8000

// systemPrompt instructs the model to return structured JSON only.
const systemPrompt = `You are an entity and relationship extraction assistant for narrative analysis.
Extract named entities AND relationships between them from the given text.
Return ONLY a valid JSON object with two arrays: "entities" and "relations".
No markdown, no explanation. Start with { and end with }.`

// buildUserPrompt constructs the combined extraction prompt. knownEntities
// primes the model with entity labels already registered in the graph, so
// it prefers matching them over minting near-duplicates.
func buildUserPrompt(text string, knownEntities []string) string {
	var sb strings.Builder
	sb.WriteString("Extract named entities AND relationships from this text. ")
	sb.WriteString("Return a JSON object with two arrays: \"entities\" and \"relations\".\n\n")

	if len(knownEntities) > 0 {
		sb.WriteString("KNOWN ENTITIES (prefer reusing these over minting new ones):\n")
		sb.WriteString(strings.Join(knownEntities, ", "))
		sb.WriteString("\n\n")
	}

	sb.WriteString("=== ENTITIES ===\n")
	sb.WriteString("Each entity object:\n")
	sb.WriteString("- \"label\": canonical name (string)\n")
	sb.WriteString(fmt.Sprintf("- \"kind\": one of: %s\n", strings.Join(AllKinds, ", ")))
	sb.WriteString("- \"confidence\": 0.0-1.0 (number)\n")
	sb.WriteString("- \"aliases\": optional array of alternative names (string[])\n\n")

	sb.WriteString("=== RELATIONS ===\n")
	sb.WriteString("Each relation object:\n")
	sb.WriteString("- \"subject\": entity performing the action (string)\n")
	sb.WriteString("- \"object\": entity receiving the action (string)\n")
	sb.WriteString("- \"verb\": the verb phrase from the text (string)\n")
	sb.WriteString(fmt.Sprintf("- \"relationType\": one of: %s\n", strings.Join(AllRelationTypes, ", ")))
	sb.WriteString("- \"manner\", \"location\", \"time\", \"recipient\": optional context (string)\n")
	sb.WriteString("- \"confidence\": 0.0-1.0 (number)\n")
	sb.WriteString("- \"sourceSentence\": the exact sentence this came from (string)\n\n")

	sb.WriteString("RULES:\n")
	sb.WriteString("1. Only proper nouns — skip generic terms\n")
	sb.WriteString("2. Deduplicate entities\n")
	sb.WriteString("3. One relationship per verb phrase\n")
	sb.WriteString("4. confidence >= 0.8 for explicit statements, 0.5-0.8 for implied ones\n\n")

	sb.WriteString("TEXT:\n")
	sb.WriteString(truncate(text))

	return sb.String()
}

func truncate(text string) string {
	if len(text) > MaxTextLength {
		return text[:MaxTextLength]
	}
	return text
}
