// Package devserver is a reference implementation of the portal backend contract used
// by the CLI's "dev serve" command and by end-to-end tests.
//
// It serves login, registration, the Telegram verification endpoints and the current
// user endpoint over echo. Accounts, verification codes and rate-limit counters live in
// Redis; access tokens are JWTs. A bot webhook accepts "/start <code>" or a bare code
// and marks the owning account verified.
package devserver
