// Package gencache implements a process-wide in-memory cache with time-based
// expiration, per-namespace capacity bounds and removal notification.
// Recency is approximated with a coarse generation clock instead of an exact
// LRU list.
//
// Components:
//   - Entry: key, payload, Expiration (Never, At, Sliding), generation stamp,
//     release hook (Disposer or io.Closer) guarded to run once.
//   - table: striped key->Entry map per namespace. When a namespace exceeds
//     its capacity the lowest generations are evicted first, down to the
//     low-water mark. Entries sharing a generation are interchangeable.
//   - sweeper: background loop that advances the generation clock once per
//     cycle and reaps expired entries. It never holds a lock for more than
//     one shard copy or one map operation.
//   - Store: the facade. One per process is typical, but it is an explicit
//     value owned by the host: New to start, Close to stop.
//
// Generations:
//
//	sweep N   -> clock = g
//	Set/Get   -> entry.gen = g      (every entry touched until the next sweep)
//	sweep N+1 -> clock = g+1
//	over cap  -> evict gen g-k ... g
//
// Removal is exactly-once per entry: whichever path (Remove, Delete, sweep,
// capacity pass, replacement, Clear) wins the compare-and-delete runs the
// removal handlers and then the release hook; the others see nothing.
package gencache
