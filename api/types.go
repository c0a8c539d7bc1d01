package api

import "github.com/medportal/portalauth/session"

// User is the wire form of a user identity.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// SessionUser converts the wire user into the session model.
func (u User) SessionUser() session.User {
	return session.User{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     session.ParseRole(u.Role),
		Verified: u.IsVerified,
	}
}

// Credentials is the login request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up request.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone,omitempty"`
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Tokens converts the result into the session token pair.
func (r AuthResult) Tokens() session.Tokens {
	return session.Tokens{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// CodeIssue is the answer to a generate or resend request.
type CodeIssue struct {
	Code            string `json:"code,omitempty"`
	TTLSeconds      int    `json:"ttlSeconds,omitempty"`
	Link            string `json:"botLink,omitempty"`
	AlreadyVerified bool   `json:"alreadyVerified,omitempty"`
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

type verificationStatus struct {
	Verified bool `json:"verified"`
}

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}
