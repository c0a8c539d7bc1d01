package internaldefs

import (
	portalauth "github.com/medportal/portalauth"
)

// CounterDef names one counter for exporters.
type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for exporters.
type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: portalauth.MetricLoginSuccess, Name: "portal_login_success_total", Help: "Successful logins."},
	{ID: portalauth.MetricLoginFailure, Name: "portal_login_failure_total", Help: "Failed logins."},
	{ID: portalauth.MetricRegisterSuccess, Name: "portal_register_success_total", Help: "Successful registrations."},
	{ID: portalauth.MetricRegisterFailure, Name: "portal_register_failure_total", Help: "Failed registrations."},
	{ID: portalauth.MetricLogout, Name: "portal_logout_total", Help: "Explicit logouts."},
	{ID: portalauth.MetricSessionInvalidated, Name: "portal_session_invalidated_total", Help: "Sessions torn down after a 401 response."},
	{ID: portalauth.MetricUnauthorizedIgnored, Name: "portal_unauthorized_ignored_total", Help: "401 responses that did not clear the session."},
	{ID: portalauth.MetricRouteGranted, Name: "portal_route_granted_total", Help: "Protected views opened."},
	{ID: portalauth.MetricRouteLoginRedirect, Name: "portal_route_login_redirect_total", Help: "Protected views redirected to login."},
	{ID: portalauth.MetricRouteRoleRedirect, Name: "portal_route_role_redirect_total", Help: "Protected views redirected to the role home."},
	{ID: portalauth.MetricVerificationCodeIssued, Name: "portal_verification_code_issued_total", Help: "Verification codes issued."},
	{ID: portalauth.MetricVerificationPoll, Name: "portal_verification_poll_total", Help: "Verification status checks."},
	{ID: portalauth.MetricVerificationExpired, Name: "portal_verification_expired_total", Help: "Verification codes that ran out."},
	{ID: portalauth.MetricVerificationSuccess, Name: "portal_verification_success_total", Help: "Completed verifications."},
	{ID: portalauth.MetricVerificationError, Name: "portal_verification_error_total", Help: "Failed code requests."},
}

var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricRequestLatency, Name: "portal_request_latency_seconds", Help: "Backend round-trip latency."},
}

const AuditDroppedName = "portal_audit_dropped_total"
const AuditDroppedHelp = "Audit events dropped by dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds; the eighth bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
