package nav

import "testing"

func TestRedirectToLoginFiresOnceFromProtectedView(t *testing.T) {
	r := NewRouter(Location{Path: "/dashboard", View: ViewProtected})

	if !r.RedirectToLogin("/dashboard") {
		t.Fatal("expected first redirect to move")
	}
	if got := r.Current(); got.View != ViewLogin || got.Next != "/dashboard" {
		t.Fatalf("unexpected location after redirect: %+v", got)
	}
	if r.RedirectToLogin("/somewhere-else") {
		t.Fatal("redirect from the login view must be a no-op")
	}
	if got := r.Current().Next; got != "/dashboard" {
		t.Fatalf("second redirect must not rewrite next, got %q", got)
	}
	if n := len(r.History()); n != 1 {
		t.Fatalf("expected one history entry, got %d", n)
	}
}

func TestRedirectUsesViewNotPath(t *testing.T) {
	// A login view reached through a different path is still the login view.
	r := NewRouter(Location{Path: "/signin", View: ViewLogin})
	if r.RedirectToLogin("/dashboard") {
		t.Fatal("expected no redirect while the login view is showing")
	}

	// A protected page whose path merely looks like login is not.
	r = NewRouter(Location{Path: "/login-history", View: ViewProtected})
	if !r.RedirectToLogin("/login-history") {
		t.Fatal("expected redirect from a protected view")
	}
}

func TestGoToCurrentLocationIsNoop(t *testing.T) {
	r := NewRouter(Location{})
	var moves int
	r.OnMove(func(from, to Location) { moves++ })

	loc := Location{Path: "/dashboard", View: ViewProtected}
	if !r.Go(loc) {
		t.Fatal("expected move")
	}
	if r.Go(loc) {
		t.Fatal("expected no-op")
	}
	if moves != 1 {
		t.Fatalf("expected one move callback, got %d", moves)
	}
}

func TestLocationStringCarriesNext(t *testing.T) {
	loc := Login("/appointments?tab=upcoming")
	want := "/login?next=%2Fappointments%3Ftab%3Dupcoming"
	if got := loc.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := ParseNext(loc.String()); got != "/appointments?tab=upcoming" {
		t.Fatalf("ParseNext round trip = %q", got)
	}
	if got := ParseNext("/login"); got != "" {
		t.Fatalf("expected empty next, got %q", got)
	}
}
