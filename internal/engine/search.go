package engine

import (
	"context"

	recallcontext "github.com/kittclouds/recall/internal/context"
	"github.com/kittclouds/recall/internal/retriever"
	"github.com/kittclouds/recall/internal/types"
)

// SearchInput is one search request.
type SearchInput struct {
	Text        string
	UserID      string
	SessionID   string
	CharacterID string
	Since       *int64
	Until       *int64
}

// SearchResult is the funnel's ranked output plus the assembled context
// block ready to hand to a generation call.
type SearchResult struct {
	Funnel   retriever.Result
	Context  recallcontext.Result
	Warnings []string
}

// searchWarnings collects the non-fatal conditions a caller should know
// about: the funnel falling back to its raw-text archive scan, and the
// context builder having to drop memories or truncate recent turns to fit
// its token budget.
func searchWarnings(funnel retriever.Result, built recallcontext.Result) []string {
	var warnings []string
	if funnel.UsedFallback {
		warnings = append(warnings, "fallback_used")
	}
	if built.DroppedMemories > 0 || built.TruncatedRecentTurns > 0 {
		warnings = append(warnings, "budget_exhausted")
	}
	return warnings
}

// Search embeds and entity-recognizes the query, runs the eleven-stage
// funnel (which falls back to a raw-text archive scan on its own if every
// stage comes up empty), then builds the final context block from the
// funnel's results plus this session's core settings, active persistent
// context, active foreshadowings and recent turns.
func (e *Engine) Search(ctx context.Context, in SearchInput) (SearchResult, error) {
	funnel, parts, err := e.retrieveForContext(ctx, in)
	if err != nil {
		return SearchResult{}, err
	}
	built := e.ctxBuilder.Build(parts.toInput(funnel))
	return SearchResult{Funnel: funnel, Context: built, Warnings: searchWarnings(funnel, built)}, nil
}

// contextParts is everything Build needs besides the funnel's own results,
// shared between Search (which builds with the engine's own configured
// budget) and BuildContext (which builds with a caller-supplied one).
type contextParts struct {
	coreSettings      types.CoreSettings
	persistentContext []types.PersistentContextItem
	foreshadowings    []types.Foreshadowing
	recentTurns       []types.Memory
}

func (p contextParts) toInput(funnel retriever.Result) recallcontext.Input {
	return recallcontext.Input{
		CoreSettings:      p.coreSettings,
		PersistentContext: p.persistentContext,
		Foreshadowings:    p.foreshadowings,
		Retrieved:         funnel.Memories,
		RecentTurns:       p.recentTurns,
	}
}

func (e *Engine) retrieveForContext(ctx context.Context, in SearchInput) (retriever.Result, contextParts, error) {
	embedding, err := e.embed(ctx, in.Text)
	if err != nil {
		return retriever.Result{}, contextParts{}, err
	}
	entities := e.recognizeEntities(in.Text)

	funnel, err := e.retr.Search(ctx, retriever.Query{
		Text:      in.Text,
		Embedding: embedding,
		Entities:  entities,
		Since:     in.Since,
		Until:     in.Until,
		UserID:    in.UserID,
		SessionID: in.SessionID,
	})
	if err != nil {
		return retriever.Result{}, contextParts{}, err
	}

	recent := reverseMemories(e.st.List(in.UserID, in.SessionID, 0, e.cfg.IncludeRecent))

	var foreshadowings []types.Foreshadowing
	if e.cfg.ForeshadowingEnabled.Value && e.foreshadow != nil {
		foreshadowings = e.foreshadow.GetActive(in.CharacterID)
	}

	var persistentItems []types.PersistentContextItem
	if e.persistent != nil {
		for _, pcType := range types.AllPersistentContextTypes {
			persistentItems = append(persistentItems, e.persistent.GetActive(pcType)...)
		}
	}

	return funnel, contextParts{
		coreSettings:      e.st.CoreSettings(),
		persistentContext: persistentItems,
		foreshadowings:    foreshadowings,
		recentTurns:       recent,
	}, nil
}

// reverseMemories flips store.List's newest-first order into the
// oldest-first order the context builder expects for RecentTurns.
func reverseMemories(memories []types.Memory) []types.Memory {
	out := make([]types.Memory, len(memories))
	for i, m := range memories {
		out[len(memories)-1-i] = m
	}
	return out
}
