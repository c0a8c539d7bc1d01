// Package stores provides the Redis-backed records of the development backend:
// accounts and short-lived Telegram verification codes.
//
// Code records are versioned, binary-encoded and single-use. Issue and Consume run as
// Lua scripts so that replacing or redeeming a code is atomic. Codes are stored under
// their SHA-256 digest, never in plaintext.
package stores
