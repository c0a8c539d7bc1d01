// Package portalauth is the session core of the healthcare portal client.
//
// A [Client], assembled by [Builder.Build], owns the session store, the navigator,
// the session gateway every backend call goes through, the route guard and the
// out-of-band verification flow. Methods are safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// portalauth wires the sub-packages together and adds audit and metrics. Decisions
// live in the sub-packages:
//
//   - session: persisted token pair and user identity.
//   - gateway: bearer attachment and 401 teardown.
//   - guard: per-navigation render/redirect decisions.
//   - verification: the code, countdown and poll state machine.
//   - api: the typed REST client.
//
// # What this package must NOT do
//
//   - Write the session other than through session.Store.
//   - Send backend requests that bypass the gateway.
//   - Retry failed verification requests automatically.
package portalauth
