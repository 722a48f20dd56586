package fetch

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxConcurrent bounds how many URLs are in flight at once.
	DefaultMaxConcurrent = 8

	interChunkPause = 500 * time.Millisecond
)

// FetchAll runs fn over urls in chunks of maxConcurrent, pausing between
// chunks to stay polite. Results keep the order of the input slice; a nil
// entry means fn was never reached because the context ended.
func FetchAll(ctx context.Context, urls []string, maxConcurrent int, fn func(ctx context.Context, url string) *Outcome) []*Outcome {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	results := make([]*Outcome, len(urls))
	for start := 0; start < len(urls); start += maxConcurrent {
		if ctx.Err() != nil {
			break
		}

		end := start + maxConcurrent
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = fn(ctx, urls[idx])
			}(i)
		}
		wg.Wait()

		if end < len(urls) {
			select {
			case <-ctx.Done():
			case <-time.After(interChunkPause):
			}
		}
	}

	return results
}
