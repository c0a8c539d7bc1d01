// Package verification runs the out-of-band identity confirmation flow.
//
// A [Coordinator] asks the backend for a short-lived numeric code, counts it down and
// polls the backend until the user has relayed the code through the chat bot. The
// user may resend a code, trigger a manual check, or retry after a failure.
//
// # States
//
//	Idle ─► Generating ─► Active ─┬─► Verified
//	  │         │           │  ▲   │
//	  │         ▼           ▼  │   └─► Expired ─► (resend) Generating
//	  │       Error      Verifying
//	  └──────────────────────────────► Verified (user already verified)
//
// # Timers
//
// While Active the coordinator owns exactly one countdown task and one poll task,
// created through a [Scheduler]. Both are cancelled before any transition out of
// Active, before a resend request is issued, and on [Coordinator.Close]. Every tick is
// tagged with the challenge epoch it was created for; ticks and responses from an
// earlier epoch are discarded.
//
// # What this package must NOT do
//
//   - Retry failed requests on its own.
//   - Keep polling after the code has expired.
//   - Write the session other than through MarkVerified.
package verification
