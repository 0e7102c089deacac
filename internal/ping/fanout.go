package ping

import (
	"context"
	"sync"
)

// PingMany queries every target with at most MaxParallel pings in flight.
// Admission is a counting semaphore: the next queued target starts as soon
// as a slot frees. Each target yields exactly one outcome; failures are
// captured per target and never abort the batch. Results arrive in
// completion order.
func (c *Client) PingMany(ctx context.Context, targets []Target) []Outcome {
	if len(targets) == 0 {
		return nil
	}

	limit := c.maxParallel
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	results := make(chan Outcome, len(targets))

	var wg sync.WaitGroup
	for _, target := range targets {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- c.Ping(ctx, target)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, 0, len(targets))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
