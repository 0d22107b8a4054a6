package stream

import (
	"context"
	"fmt"
)

// FetchFunc retrieves the authoritative persisted record for id.
type FetchFunc[T any] func(ctx context.Context, id int64) (T, error)

// Reconcile fetches the canonical record for a completed session so UI state
// and storage never diverge. It must only be called after the completion
// resolved; errors and cancellations are never reconciled. A missing record
// surfaces as ErrRecordNotFound via the fetcher and is not retried; the
// stream itself still counts as having succeeded.
func Reconcile[T any](ctx context.Context, comp *Completion, fetch FetchFunc[T]) (T, error) {
	var zero T

	res, err := comp.Result()
	if err != nil {
		return zero, fmt.Errorf("reconcile: %w", err)
	}

	rec, err := fetch(ctx, res.RecordID)
	if err != nil {
		return zero, fmt.Errorf("reconcile record %d: %w", res.RecordID, err)
	}
	return rec, nil
}
