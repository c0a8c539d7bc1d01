package guard

import (
	"strings"

	"github.com/medportal/portalauth/nav"
	"github.com/medportal/portalauth/session"
)

// Route binds a path to its view kind and gate.
type Route struct {
	Path string
	View nav.View
	Gate Gate
}

// Table is the portal's route table keyed by path.
type Table map[string]Route

// DefaultTable returns the portal routes.
func DefaultTable() Table {
	patient := Only(session.RolePatient)
	doctor := Only(session.RoleDoctor)
	admin := Only(session.RoleAdmin)

	routes := []Route{
		{Path: "/", View: nav.ViewPublic},
		{Path: nav.LoginPath, View: nav.ViewLogin},
		{Path: "/register", View: nav.ViewPublic},

		{Path: PatientHome, View: nav.ViewProtected, Gate: patient},
		{Path: "/appointments", View: nav.ViewProtected, Gate: patient},
		{Path: "/payments", View: nav.ViewProtected, Gate: patient},
		{Path: "/symptom-checker", View: nav.ViewProtected, Gate: patient},

		{Path: DoctorHome, View: nav.ViewProtected, Gate: doctor},
		{Path: "/doctor/appointments", View: nav.ViewProtected, Gate: doctor},

		{Path: AdminHome, View: nav.ViewProtected, Gate: admin},
		{Path: "/admin/users", View: nav.ViewProtected, Gate: admin},

		{Path: "/medicines", View: nav.ViewProtected, Gate: Any},
		{Path: "/profile", View: nav.ViewProtected, Gate: Any},
		{Path: "/verify-telegram", View: nav.ViewProtected, Gate: Any},
	}

	t := make(Table, len(routes))
	for _, r := range routes {
		t[r.Path] = r
	}
	return t
}

// Lookup finds the route for a raw path. Query strings and a trailing slash are
// ignored.
func (t Table) Lookup(raw string) (Route, bool) {
	path, _, _ := strings.Cut(raw, "?")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	r, ok := t[path]
	return r, ok
}

// Location returns the navigable location for raw. Login locations carry their next
// parameter; other views keep their query string.
func (r Route) Location(raw string) nav.Location {
	if r.View == nav.ViewLogin {
		return nav.Location{Path: r.Path, View: r.View, Next: nav.ParseNext(raw)}
	}
	loc := nav.Location{Path: r.Path, View: r.View}
	if _, query, ok := strings.Cut(raw, "?"); ok && query != "" {
		loc.Path += "?" + query
	}
	return loc
}
