package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kittclouds/recall/internal/llmbackend"
	"github.com/kittclouds/recall/internal/taskmgr"
	"github.com/kittclouds/recall/internal/types"
)

// Episode is a contiguous run of turns within one session, closed once
// EPISODE_GAP_TURNS turns of inactivity pass or the user switches sessions.
type Episode struct {
	ID           string
	UserID       string
	SessionID    string
	StartTurnSeq int64
	EndTurnSeq   int64
	Summary      string
	CreatedAt    int64
}

// episodeState is the mutable in-progress record the tracker keeps per
// (user, session) while an episode is still open.
type episodeState struct {
	id          string
	userID      string
	sessionID   string
	startTurn   int64
	endTurn     int64
	lastTurnAt  int64
	createdAt   int64
}

// trackTurn advances the global turn counter and applies it to the
// (userID, sessionID) episode: a session change for this user closes the
// previous session's episode immediately, and a gap exceeding
// EpisodeGapTurns closes the current one before opening a fresh one. It
// returns the turn number to stamp on the memory being ingested.
func (e *Engine) trackTurn(userID, sessionID string, now int64) int64 {
	e.episodesMu.Lock()
	defer e.episodesMu.Unlock()

	e.globalTurn++
	turn := e.globalTurn

	if last, ok := e.lastSession[userID]; ok && last != sessionID {
		if st, ok := e.active[sessionKey(userID, last)]; ok {
			e.closeEpisodeLocked(st)
		}
	}
	e.lastSession[userID] = sessionID

	key := sessionKey(userID, sessionID)
	st, ok := e.active[key]
	if ok && turn-st.lastTurnAt > int64(e.cfg.EpisodeGapTurns) {
		e.closeEpisodeLocked(st)
		ok = false
	}
	if !ok {
		st = &episodeState{id: e.idSeq(), userID: userID, sessionID: sessionID, startTurn: turn, createdAt: now}
		e.active[key] = st
	}
	st.endTurn = turn
	st.lastTurnAt = turn
	return turn
}

// closeEpisodeLocked (episodesMu held) moves an episode from active to
// closed and kicks off its async summary.
func (e *Engine) closeEpisodeLocked(st *episodeState) {
	delete(e.active, sessionKey(st.userID, st.sessionID))

	ep := Episode{
		ID:           st.id,
		UserID:       st.userID,
		SessionID:    st.sessionID,
		StartTurnSeq: st.startTurn,
		EndTurnSeq:   st.endTurn,
		CreatedAt:    st.createdAt,
	}
	e.closed = append(e.closed, ep)
	idx := len(e.closed) - 1

	snapshot := *st
	e.tasks.Submit(context.Background(), taskmgr.KindEpisodeSummarization, st.userID, st.sessionID, func(ctx context.Context) error {
		return e.summarizeEpisode(ctx, idx, snapshot)
	})
}

// summarizeEpisode generates a one-line summary for a just-closed episode,
// preferring an LLM call when the budget allows one and falling back to a
// truncated excerpt of the episode's last memory otherwise.
func (e *Engine) summarizeEpisode(ctx context.Context, idx int, st episodeState) error {
	memories := e.st.List(st.userID, st.sessionID, 0, 50)
	summary := fallbackEpisodeSummary(memories)

	budgetTokens := e.cfg.LLMMaxTokens["summary"]
	if e.chatter != nil && e.budget.Reserve(budgetTokens) {
		result, err := e.chat(ctx, []llmbackend.Message{
			{Role: "system", Content: "Summarize this conversation episode in one short sentence."},
			{Role: "user", Content: joinMemoryContents(memories)},
		}, budgetTokens)
		if err != nil {
			e.budget.Release(budgetTokens)
		} else {
			e.budget.Settle(budgetTokens, result.PromptTokens+result.CompletionTokens)
			if trimmed := strings.TrimSpace(result.Text); trimmed != "" {
				summary = trimmed
			}
		}
	}

	e.episodesMu.Lock()
	e.closed[idx].Summary = summary
	e.episodesMu.Unlock()
	return nil
}

func fallbackEpisodeSummary(memories []types.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	last := memories[0].Content
	const maxLen = 140
	if len(last) > maxLen {
		last = last[:maxLen] + "..."
	}
	return last
}

func joinMemoryContents(memories []types.Memory) string {
	parts := make([]string, 0, len(memories))
	for i := len(memories) - 1; i >= 0; i-- {
		parts = append(parts, fmt.Sprintf("%s: %s", memories[i].Role, memories[i].Content))
	}
	return strings.Join(parts, "\n")
}

// Episodes returns every closed episode for (userID, sessionID) plus the
// still-open one, if any, oldest first.
func (e *Engine) Episodes(userID, sessionID string) []Episode {
	e.episodesMu.Lock()
	defer e.episodesMu.Unlock()

	var out []Episode
	for _, ep := range e.closed {
		if ep.UserID == userID && ep.SessionID == sessionID {
			out = append(out, ep)
		}
	}
	if st, ok := e.active[sessionKey(userID, sessionID)]; ok {
		out = append(out, Episode{
			ID:           st.id,
			UserID:       userID,
			SessionID:    sessionID,
			StartTurnSeq: st.startTurn,
			EndTurnSeq:   st.endTurn,
			CreatedAt:    st.createdAt,
		})
	}
	return out
}
