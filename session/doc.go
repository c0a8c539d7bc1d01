// Package session holds the client's authenticated identity and credential pair.
//
// # Lifecycle
//
// A [Store] is created once per client process. [Store.Load] restores the persisted
// session at start-up, [Store.Persist] replaces it after login or registration,
// [Store.Clear] removes it on logout or forced invalidation, and [Store.MarkVerified]
// flips the verified flag after out-of-band confirmation.
//
// Every write replaces the whole [Session] value. Readers take one atomic
// [Store.Snapshot] and never observe a token pair without its user, or the reverse.
//
// # Persistence
//
// Two records, the token pair and the user identity blob, are encoded with a compact
// versioned binary format and written together through a [Backend]. Memory, file and
// Redis backends are provided.
//
// # What this package must NOT do
//
//   - Perform HTTP calls or interpret backend responses.
//   - Make routing or authorization decisions.
//   - Return an error from Load: malformed data is treated as no session.
package session
