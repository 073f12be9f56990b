// Package async provides bounded concurrent dispatch over a batch of items.
// It exists for fan-out workloads where one slow or failing item must not
// hold up or abort the rest of the batch.
package async

import (
	"context"
	"fmt"
	"sync"
)

// ForEach invokes fn once per item, running at most limit invocations
// concurrently. A non-positive limit runs items one at a time. Panics in fn
// are recovered and reported as errors wrapped in ErrPanicked.
//
// The returned slice has one entry per item, nil for invocations that
// succeeded. ForEach always processes the whole batch: an item's failure
// never cancels its siblings. When ctx is canceled, items not yet started
// fail with ctx.Err() instead of running.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) []error {
	if limit <= 0 {
		limit = 1
	}

	errs := make([]error, len(items))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, item := range items {
		i, item := i, item
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%w: %v", ErrPanicked, r)
				}
			}()
			errs[i] = fn(ctx, item)
		}()
	}

	wg.Wait()
	return errs
}
