package guard

import (
	"slices"

	"github.com/medportal/portalauth/nav"
	"github.com/medportal/portalauth/session"
)

// State is a guard decision state.
type State uint8

const (
	StateChecking State = iota
	StateUnauthenticated
	StateRoleMismatch
	StateGranted
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRoleMismatch:
		return "role_mismatch"
	case StateGranted:
		return "granted"
	default:
		return "checking"
	}
}

// Gate is the set of roles permitted on a protected view. An empty gate admits any
// authenticated role.
type Gate struct {
	Allowed []session.Role
}

// Any admits every authenticated role.
var Any = Gate{}

// Only returns a gate for the given roles.
func Only(roles ...session.Role) Gate {
	return Gate{Allowed: roles}
}

func (g Gate) admits(role session.Role) bool {
	return len(g.Allowed) == 0 || slices.Contains(g.Allowed, role)
}

// Decision is the outcome of one navigation check.
type Decision struct {
	State State
	// Target is where the client ends up: the requested location when granted,
	// otherwise the redirect destination.
	Target nav.Location
}

// Granted reports whether the requested content may be rendered.
func (d Decision) Granted() bool {
	return d.State == StateGranted
}

const (
	PatientHome = "/dashboard"
	DoctorHome  = "/doctor/dashboard"
	AdminHome   = "/admin/dashboard"
)

// HomeFor returns the fixed home location of role. Unrecognised roles use the patient
// home.
func HomeFor(role session.Role) nav.Location {
	switch role {
	case session.RoleAdmin:
		return nav.Location{Path: AdminHome, View: nav.ViewProtected}
	case session.RoleDoctor:
		return nav.Location{Path: DoctorHome, View: nav.ViewProtected}
	default:
		return nav.Location{Path: PatientHome, View: nav.ViewProtected}
	}
}

// Evaluate decides a navigation to requested from a single session snapshot.
func Evaluate(sess session.Session, ok bool, gate Gate, requested nav.Location) Decision {
	if !ok || !sess.Authenticated() {
		return Decision{State: StateUnauthenticated, Target: nav.Login(requested.String())}
	}
	if !gate.admits(sess.User.Role) {
		return Decision{State: StateRoleMismatch, Target: HomeFor(sess.User.Role)}
	}
	return Decision{State: StateGranted, Target: requested}
}

// Snapshotter is the read side of the session store.
type Snapshotter interface {
	Snapshot() (session.Session, bool)
}

// Guard evaluates navigations against a live session store.
type Guard struct {
	sessions Snapshotter
}

func New(sessions Snapshotter) *Guard {
	return &Guard{sessions: sessions}
}

// Check takes one snapshot and evaluates requested against gate.
func (g *Guard) Check(requested nav.Location, gate Gate) Decision {
	sess, ok := g.sessions.Snapshot()
	return Evaluate(sess, ok, gate, requested)
}
