package llmbackend

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/kittclouds/recall/internal/errs"
)

const maxRetries = 3

// callWithRetry retries failed calls with exponential backoff, giving up
// after maxRetries retries (maxRetries+1 calls in all) or when the context
// is done. It does not tell transient failures from permanent ones: every
// error is retried.
func callWithRetry(ctx context.Context, fn func() (Result, error)) (Result, error) {
	var result Result
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	err := backoff.Retry(func() error {
		var err error
		result, err = fn()
		return err
	}, policy)
	return result, err
}

// classify maps a raw transport/SDK error onto Recall's error taxonomy so
// callers can branch on errs.Kind instead of provider-specific error types.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*errs.Error); ok {
		return e
	}
	return errs.Wrap(errs.BackendUnavailable, "llm call failed", err)
}
