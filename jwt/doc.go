// Package jwt issues and verifies the access tokens handed out by the development
// backend. Tokens carry the user ID and role and are signed with HS256 or Ed25519.
package jwt
