// Package guard decides what a visitor may render for a requested location.
//
// # State machine
//
// Each navigation starts in [StateChecking], reads one session snapshot and ends in
// exactly one of [StateUnauthenticated], [StateRoleMismatch] or [StateGranted].
// [Evaluate] is a pure function of that snapshot; no network call is made while
// deciding.
//
// # Role homes
//
// A role mismatch sends the visitor to the fixed home of their role. The mapping is
// total: unknown roles go to the patient home.
//
// # What this package must NOT do
//
//   - Mutate the session.
//   - Read the session more than once per decision.
//   - Perform HTTP calls.
package guard
