// Package llmbackend adapts Recall's LLM calls (extraction, contradiction
// judging, dedup confirmation, foreshadowing analysis, consistency checks)
// to whichever provider the configured API base and model name resolve to.
package llmbackend

import (
	"context"
	"strings"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/errs"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string
	Content string
}

// Result is the text and accounting data for a completed chat call.
type Result struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Chatter issues one blocking chat completion call.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, maxTokens int) (Result, error)
}

// Dialect is the wire protocol a backend speaks.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
	DialectGoogle    Dialect = "google"
)

// DetectDialect picks a dialect from the configured API base and model
// name, defaulting to the OpenAI-compatible wire format used by the large
// majority of self-hosted and proxy LLM endpoints.
func DetectDialect(apiBase, model string) Dialect {
	base := strings.ToLower(apiBase)
	m := strings.ToLower(model)

	switch {
	case strings.Contains(base, "anthropic"), strings.HasPrefix(m, "claude"):
		return DialectAnthropic
	case strings.Contains(base, "generativelanguage"), strings.Contains(base, "aiplatform"),
		strings.HasPrefix(m, "gemini"), strings.HasPrefix(m, "models/gemini"):
		return DialectGoogle
	default:
		return DialectOpenAI
	}
}

// New builds a Chatter for the given config, wrapped with budget accounting
// and retry/circuit-breaking.
func New(cfg *config.Config, budget *Budget) (Chatter, error) {
	dialect := DetectDialect(cfg.LLMAPIBase, cfg.LLMModel)

	var inner Chatter
	var err error
	switch dialect {
	case DialectAnthropic:
		inner, err = newAnthropicChatter(cfg)
	case DialectGoogle:
		inner, err = newGoogleChatter(cfg)
	default:
		inner, err = newOpenAIChatter(cfg)
	}
	if err != nil {
		return nil, err
	}

	breaker := newBreaker(5, breakerCooldownDefault)
	return &guardedChatter{
		inner:   inner,
		budget:  budget,
		breaker: breaker,
		timeout: cfg.LLMTimeoutSeconds,
	}, nil
}

// guardedChatter wraps a raw Chatter with budget enforcement, a circuit
// breaker and exponential-backoff retries, translating failures into the
// abstract error taxonomy.
type guardedChatter struct {
	inner   Chatter
	budget  *Budget
	breaker *breaker
	timeout int
}

func (g *guardedChatter) Chat(ctx context.Context, messages []Message, maxTokens int) (Result, error) {
	if g.budget != nil && !g.budget.Reserve(maxTokens) {
		return Result{}, errs.New(errs.BudgetExceeded, "llm token budget exhausted")
	}
	if !g.breaker.Allow() {
		return Result{}, errs.New(errs.BackendUnavailable, "llm circuit open")
	}

	res, err := callWithRetry(ctx, func() (Result, error) {
		return g.inner.Chat(ctx, messages, maxTokens)
	})
	if err != nil {
		g.breaker.RecordFailure()
		if g.budget != nil {
			g.budget.Release(maxTokens)
		}
		return Result{}, classify(err)
	}
	g.breaker.RecordSuccess()
	if g.budget != nil {
		g.budget.Settle(maxTokens, res.PromptTokens+res.CompletionTokens)
	}
	return res, nil
}
