// Package network provides an outbound HTTP request orchestration layer
// that sits between application code and the transport. It decides, per
// request, whether to serve from cache, collapse the call into an identical
// in-flight request, retry with backoff on failure, and transparently
// refresh an expired bearer credential and replay the request once.
//
// Reliability primitives, all composable via functional options:
//
//   - Request fingerprinting (pluggable canonical identity for a request)
//   - Single-flight collapsing of concurrent identical requests
//   - TTL response cache with bounded size and pattern invalidation
//   - Retries with exponential backoff + jitter and a pluggable predicate
//   - Serialized credential refresh with replay-once on 401
//   - Circuit breaker (open / half-open / closed states)
//   - Rate limiting (token bucket)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via pluggable cache backend, token store and key function
//   - Failures in ancillary layers (cache, logging, metrics) never fail the
//     primary request
//
// Typical usage:
//
//	client := network.New(
//	    network.WithCache(30*time.Second),
//	    network.WithDeduplication(),
//	    network.WithAuth(network.AuthConfig{
//	        LoginURL:   "https://api.example.com/auth/login",
//	        RefreshURL: "https://api.example.com/auth/refresh",
//	    }),
//	)
//	resp, err := client.Get(ctx, "https://api.example.com/users/1")
//
// Only safe idempotent methods are cached and collapsed by default; override
// with WithCacheCondition / WithDeduplicationCondition. The library avoids
// opinionated logging: provide a Logger (e.g. via WithSimpleLogger) and
// enable debug flags selectively for insight without noise.
package network
