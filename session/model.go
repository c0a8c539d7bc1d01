package session

import "strings"

// Role is the closed set of portal roles.
type Role uint8

const (
	// RoleUnknown marks a role string the client does not recognise.
	RoleUnknown Role = iota
	// RolePatient is the default portal role.
	RolePatient
	// RoleDoctor grants the doctor workspace.
	RoleDoctor
	// RoleAdmin grants the administration workspace.
	RoleAdmin
)

// ParseRole maps a wire role name to a Role. Unrecognised names map to RoleUnknown.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient":
		return RolePatient
	case "doctor":
		return RoleDoctor
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleDoctor:
		return "doctor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Tokens is the credential pair issued by login or registration.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// User is the identity attached to a session.
type User struct {
	ID       string
	Email    string
	Name     string
	Role     Role
	Verified bool
}

// Session is an immutable snapshot of the authenticated client state.
type Session struct {
	Tokens Tokens
	User   User
}

// Authenticated reports whether both the access token and the user are present.
func (s Session) Authenticated() bool {
	return s.Tokens.AccessToken != "" && s.User.ID != ""
}
