package engine

import (
	"context"

	recallcontext "github.com/kittclouds/recall/internal/context"
	"github.com/kittclouds/recall/internal/types"
)

// AddBatch runs Add once per item, in order, collecting every result and
// the first error (subsequent items still run, matching the teacher's
// batch-service shape of "best effort, report what failed").
func (e *Engine) AddBatch(ctx context.Context, items []AddInput) ([]AddResult, error) {
	results := make([]AddResult, 0, len(items))
	var firstErr error
	for _, in := range items {
		res, err := e.Add(ctx, in)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

// AddTurn is the common two-call shorthand: store the user's text then the
// assistant's reply as two ordinary turns in the same session, returning
// both memory ids.
func (e *Engine) AddTurn(ctx context.Context, userText, assistantText string, userID, sessionID string) (userMemoryID, assistantMemoryID string, err error) {
	userRes, err := e.Add(ctx, AddInput{Content: userText, Role: types.RoleUser, UserID: userID, SessionID: sessionID})
	if err != nil {
		return "", "", err
	}
	assistantRes, err := e.Add(ctx, AddInput{Content: assistantText, Role: types.RoleAssistant, UserID: userID, SessionID: sessionID})
	if err != nil {
		return userRes.Memory.ID, "", err
	}
	return userRes.Memory.ID, assistantRes.Memory.ID, nil
}

// ListFilters narrows List beyond the (user, session) pair store.List
// already takes.
type ListFilters struct {
	UserID      string
	SessionID   string
	Source      string
	Category    string
	ContentType string
	Tags        []string
	Since       int64
	Until       int64
}

// Page bounds a List call's result window.
type Page struct {
	Offset int
	Limit  int
}

// List runs store.List's (user, session, since) scan, then applies the
// remaining filters and the caller's page in memory, consistent with
// store.List's own linear-scan-then-cap approach at this corpus size.
func (e *Engine) List(filters ListFilters, page Page) []types.Memory {
	raw := e.st.List(filters.UserID, filters.SessionID, filters.Since, 0)

	out := raw[:0]
	for _, m := range raw {
		if filters.Until > 0 && m.CreatedAt > filters.Until {
			continue
		}
		if filters.Source != "" && m.Source != filters.Source {
			continue
		}
		if filters.Category != "" && m.Category != filters.Category {
			continue
		}
		if filters.ContentType != "" && m.ContentType != filters.ContentType {
			continue
		}
		if len(filters.Tags) > 0 && !hasAnyTag(m.Tags, filters.Tags) {
			continue
		}
		out = append(out, m)
	}

	if page.Offset > 0 {
		if page.Offset >= len(out) {
			return nil
		}
		out = out[page.Offset:]
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// BuildContext runs the same retrieval Search does but renders with a
// caller-supplied token budget instead of the configured default, for
// callers that want spec.md's BuildContext(query, budget_tokens) as its
// own call rather than Search's bundled one. Builds against a config copy
// so concurrent Search/BuildContext calls never see each other's budget:
// *Config is meant to stay immutable once resolved (config.Load returns
// one snapshot per request/session).
func (e *Engine) BuildContext(ctx context.Context, query string, userID, sessionID string, budgetTokens int) (string, error) {
	funnel, parts, err := e.retrieveForContext(ctx, SearchInput{Text: query, UserID: userID, SessionID: sessionID})
	if err != nil {
		return "", err
	}

	cfgCopy := *e.cfg
	if budgetTokens > 0 {
		cfgCopy.BuildContextMaxTokens = budgetTokens
	}
	built := recallcontext.New(&cfgCopy).Build(parts.toInput(funnel))
	return built.Text, nil
}
