// Package rate implements Redis fixed-window counters for the development backend:
// failed logins per email and verification code requests per user.
package rate
