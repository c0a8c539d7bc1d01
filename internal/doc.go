// Package internal holds random and hashing helpers shared by the development
// backend: OTP generation, refresh token encoding and code digests.
//
// Sub-packages:
//
//   - config: PORTAL_* settings for the CLI and the development backend
//   - devserver: echo-based development backend with the Telegram webhook
//   - rate: Redis fixed-window limits for logins and code requests
//   - stores: Redis user and verification code stores
package internal
