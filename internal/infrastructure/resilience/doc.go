/*
Package resilience provides a circuit breaker for calls that leave the host.

# Overview

The only such call today is the HTTP update feed: when the feed is down the
breaker opens and update checks fail fast instead of waiting out retries.

# Usage

	breaker := resilience.New("update-feed", resilience.ForUpdateFeed(30*time.Second, logger))

	manifest, err := resilience.Do(ctx, breaker, func(ctx context.Context) (*types.Manifest, error) {
		return fetch(ctx)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Feed unavailable, requests fail immediately with ErrCircuitOpen
- Half-Open: Limited trials decide whether to close again

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open

Context cancellation is neutral: it neither trips nor heals the breaker.
*/
package resilience
