// Package context builds the string the host LLM consumes on every turn:
// core settings, active persistent-context items, active foreshadowings,
// retrieved memories and recent turns, bounded to a token budget.
package context

import (
	"fmt"
	"strings"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/retriever"
	"github.com/kittclouds/recall/internal/types"
)

// Input is everything Build needs for one turn. RecentTurns is assumed
// sorted oldest-first by TurnSeq.
type Input struct {
	CoreSettings      types.CoreSettings
	PersistentContext []types.PersistentContextItem
	Foreshadowings    []types.Foreshadowing
	Retrieved         []retriever.ScoredMemory
	RecentTurns       []types.Memory
}

// Result is the built context plus the trimming decisions a caller may
// want to log.
type Result struct {
	Text                 string
	Reminders            []string
	DroppedMemories      int
	TruncatedRecentTurns int
}

// Builder renders Input into a bounded context string per the configured
// budget and reminder policy.
type Builder struct {
	cfg *config.Config
}

// New builds a Builder bound to cfg.
func New(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// estimateTokens is a cheap chars/4 heuristic consistent with the common
// rule of thumb for English text; no pack example ships a real tokenizer
// counter, and the budget this feeds is approximate by nature (it bounds a
// string assembled from already-budgeted sections, not a wire payload).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Build assembles the context string, dropping lowest-scoring retrieved
// memories first and then truncating the oldest recent turns when the
// budget is exceeded. L0 core settings, persistent context and active
// foreshadowings are never dropped.
func (b *Builder) Build(in Input) Result {
	var sections []string
	budget := b.cfg.BuildContextMaxTokens
	if budget <= 0 {
		budget = 4000
	}

	core := renderCoreSettings(in.CoreSettings)
	if core != "" {
		sections = append(sections, core)
		budget -= estimateTokens(core)
	}

	pc := renderPersistentContext(in.PersistentContext)
	if pc != "" {
		sections = append(sections, pc)
		budget -= estimateTokens(pc)
	}

	maxReturn := b.cfg.ForeshadowingMaxReturn
	if maxReturn <= 0 {
		maxReturn = 5
	}
	fs := renderForeshadowings(in.Foreshadowings, maxReturn)
	if fs != "" {
		sections = append(sections, fs)
		budget -= estimateTokens(fs)
	}

	reminders := b.buildReminders(in)
	if len(reminders) > 0 {
		reminderBlock := "Reminders:\n" + strings.Join(reminders, "\n")
		sections = append(sections, reminderBlock)
		budget -= estimateTokens(reminderBlock)
	}

	memSection, dropped := renderRetrievedBudgeted(in.Retrieved, budget)
	if memSection != "" {
		sections = append(sections, memSection)
		budget -= estimateTokens(memSection)
	}

	includeRecent := b.cfg.IncludeRecent
	if includeRecent <= 0 {
		includeRecent = 10
	}
	recent := in.RecentTurns
	if len(recent) > includeRecent {
		recent = recent[len(recent)-includeRecent:]
	}
	turnSection, truncated := renderRecentBudgeted(recent, budget)
	if turnSection != "" {
		sections = append(sections, turnSection)
	}

	return Result{
		Text:                 strings.Join(sections, "\n\n"),
		Reminders:            reminders,
		DroppedMemories:      dropped,
		TruncatedRecentTurns: truncated,
	}
}

func renderCoreSettings(c types.CoreSettings) string {
	var b strings.Builder
	if c.CharacterCard != "" {
		fmt.Fprintf(&b, "Character: %s\n", c.CharacterCard)
	}
	if c.Worldbook != "" {
		fmt.Fprintf(&b, "Worldbook: %s\n", c.Worldbook)
	}
	if c.WritingStyle != "" {
		fmt.Fprintf(&b, "Writing style: %s\n", c.WritingStyle)
	}
	if c.CodingConventions != "" {
		fmt.Fprintf(&b, "Coding conventions: %s\n", c.CodingConventions)
	}
	for _, rule := range c.AbsoluteRules {
		fmt.Fprintf(&b, "Rule: %s\n", rule)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderPersistentContext(items []types.PersistentContextItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known context:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s\n", item.Type, item.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderForeshadowings(items []types.Foreshadowing, maxReturn int) string {
	var active []types.Foreshadowing
	for _, it := range items {
		if it.State == types.ForeshadowingPlanted || it.State == types.ForeshadowingDeveloping {
			active = append(active, it)
		}
	}
	if len(active) == 0 {
		return ""
	}
	sortByImportanceDesc(active)
	if len(active) > maxReturn {
		active = active[:maxReturn]
	}
	var b strings.Builder
	b.WriteString("Active foreshadowing:\n")
	for _, it := range active {
		fmt.Fprintf(&b, "- %s\n", it.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sortByImportanceDesc(items []types.Foreshadowing) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Importance > items[j-1].Importance; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func renderRetrievedBudgeted(scored []retriever.ScoredMemory, budget int) (string, int) {
	if len(scored) == 0 {
		return "", 0
	}
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	used := estimateTokens(b.String())
	kept := 0
	for _, sm := range scored {
		line := fmt.Sprintf("- %s\n", sm.Memory.Content)
		cost := estimateTokens(line)
		if budget > 0 && used+cost > budget {
			break
		}
		b.WriteString(line)
		used += cost
		kept++
	}
	if kept == 0 {
		return "", len(scored)
	}
	return strings.TrimSuffix(b.String(), "\n"), len(scored) - kept
}

func renderRecentBudgeted(turns []types.Memory, budget int) (string, int) {
	if len(turns) == 0 {
		return "", 0
	}
	var lines []string
	used := 0
	truncated := 0
	for i := len(turns) - 1; i >= 0; i-- {
		line := fmt.Sprintf("[%s] %s", turns[i].Role, turns[i].Content)
		cost := estimateTokens(line)
		if budget > 0 && used+cost > budget {
			truncated = i + 1
			break
		}
		lines = append([]string{line}, lines...)
		used += cost
	}
	if len(lines) == 0 {
		return "", len(turns)
	}
	return "Recent turns:\n" + strings.Join(lines, "\n"), truncated
}

// buildReminders flags persistent-context/foreshadowing items that haven't
// surfaced in the last ReminderTurns turns and meet the importance
// threshold. With fewer recent turns than ReminderTurns on hand there is
// no evidence of staleness yet, so nothing is flagged.
func (b *Builder) buildReminders(in Input) []string {
	turns := b.cfg.ReminderTurns
	if turns <= 0 || len(in.RecentTurns) < turns {
		return nil
	}
	cutoff := in.RecentTurns[len(in.RecentTurns)-turns].CreatedAt
	threshold := b.cfg.ReminderImportanceThreshold

	var reminders []string
	for _, item := range in.PersistentContext {
		if item.LastSeenAt < cutoff && item.Confidence >= threshold {
			reminders = append(reminders, fmt.Sprintf("Don't forget: %s", item.Content))
		}
	}
	for _, fs := range in.Foreshadowings {
		if fs.State != types.ForeshadowingPlanted && fs.State != types.ForeshadowingDeveloping {
			continue
		}
		if fs.LastUpdateAt < cutoff && fs.Importance >= threshold {
			reminders = append(reminders, fmt.Sprintf("Unresolved thread: %s", fs.Content))
		}
	}
	return reminders
}
