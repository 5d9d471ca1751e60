// Package cache is the application-level cache that sits in front of the
// task, schedule and reporting reads.
//
// A [Manager] writes msgpack-encoded values to a [kv.Store] under a
// namespace (default "cache"). Every operation is best-effort: if the store
// is slow or down the failure is logged, reads report a miss and writes are
// dropped. Callers never need to handle a cache error, and a cache outage
// never becomes a request failure.
//
// # Reads and writes
//
// [Get] is generic so the caller picks the decoded type:
//
//	tasks, ok := cache.Get[[]Task](ctx, m, "tasks:site:42")
//
// [Manager.Set] stores a value with a TTL; a TTL of zero stores it without
// expiry. [MGet] and [Manager.MSet] batch many keys into one round trip.
// [Manager.Clear] removes every key matching a glob relative to the
// namespace.
//
// # Memoization
//
// [Memoize] wraps a function so its results are cached by a hash of its
// arguments:
//
//	lookup := cache.Memoize(m, repo.SiteSchedule, "schedule", 10*time.Minute)
//	sched, err := lookup(ctx, ScheduleQuery{SiteID: 42})
//
// Arguments are encoded with msgpack (map keys sorted) and hashed with
// xxhash. Errors are never cached. There is no single-flight: concurrent
// misses for the same arguments each call through.
//
// [Exec] is the read-through variant for a single key. Its [Invoker]
// returns (value, found, error) so "not found" is not cached as a zero value.
//
// # Rate limiting
//
// [Manager.RateLimit] is a thin fail-open wrapper over the ratelimit
// package for callers that only need a yes/no answer. Counters live under
// "<namespace>:ratelimit:".
package cache
