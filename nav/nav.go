// Package nav tracks which view the client is currently showing.
//
// The [Router] is the single source of truth for "where am I". Redirect decisions
// compare [View] values rather than path strings, so "already on the login view" is an
// explicit state check.
package nav

import (
	"net/url"
	"strings"
	"sync"
)

// View classifies a location.
type View uint8

const (
	ViewPublic View = iota
	ViewLogin
	ViewProtected
)

func (v View) String() string {
	switch v {
	case ViewLogin:
		return "login"
	case ViewProtected:
		return "protected"
	default:
		return "public"
	}
}

// LoginPath is the path of the login view.
const LoginPath = "/login"

// Location is one navigable place in the client.
type Location struct {
	Path string
	View View
	// Next is the location to return to after login. Only meaningful for ViewLogin.
	Next string
}

// Login returns the login location carrying returnTo.
func Login(returnTo string) Location {
	return Location{Path: LoginPath, View: ViewLogin, Next: returnTo}
}

// String renders the location as a path, with the return location as a query for the
// login view.
func (l Location) String() string {
	if l.View == ViewLogin && l.Next != "" {
		return l.Path + "?next=" + url.QueryEscape(l.Next)
	}
	return l.Path
}

// ParseNext extracts the "next" query value from a raw path, if any.
func ParseNext(raw string) string {
	_, query, ok := strings.Cut(raw, "?")
	if !ok {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get("next")
}

// Navigator is what the gateway and client need from a router.
type Navigator interface {
	Current() Location
	Go(loc Location) bool
	RedirectToLogin(returnTo string) bool
}

// Router is the in-process Navigator.
type Router struct {
	mu      sync.Mutex
	current Location
	history []Location
	onMove  func(from, to Location)
}

// NewRouter returns a router positioned at start.
func NewRouter(start Location) *Router {
	if start.Path == "" {
		start = Location{Path: "/", View: ViewPublic}
	}
	return &Router{current: start}
}

// OnMove registers a callback invoked after every effective navigation. It runs with
// the router unlocked.
func (r *Router) OnMove(fn func(from, to Location)) {
	r.mu.Lock()
	r.onMove = fn
	r.mu.Unlock()
}

func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Go moves to loc. Moving to the current location is a no-op and reports false.
func (r *Router) Go(loc Location) bool {
	r.mu.Lock()
	if loc == r.current {
		r.mu.Unlock()
		return false
	}
	from := r.current
	r.history = append(r.history, from)
	r.current = loc
	hook := r.onMove
	r.mu.Unlock()

	if hook != nil {
		hook(from, loc)
	}
	return true
}

// RedirectToLogin moves to the login view unless the router is already showing it.
func (r *Router) RedirectToLogin(returnTo string) bool {
	r.mu.Lock()
	if r.current.View == ViewLogin {
		r.mu.Unlock()
		return false
	}
	from := r.current
	to := Login(returnTo)
	r.history = append(r.history, from)
	r.current = to
	hook := r.onMove
	r.mu.Unlock()

	if hook != nil {
		hook(from, to)
	}
	return true
}

// History returns previously visited locations, oldest first.
func (r *Router) History() []Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Location, len(r.history))
	copy(out, r.history)
	return out
}
