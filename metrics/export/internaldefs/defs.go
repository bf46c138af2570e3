package internaldefs

import (
	goGrant "github.com/MrEthical07/goGrant"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goGrant.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goGrant.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGrant.MetricSignUpSuccess, Name: "gogrant_signup_success_total", Help: "Local sign-ups that issued an authorization code."},
	{ID: goGrant.MetricSignUpEmailInUse, Name: "gogrant_signup_email_in_use_total", Help: "Sign-ups rejected because the email belongs to another account."},
	{ID: goGrant.MetricSignInSuccess, Name: "gogrant_signin_success_total", Help: "Local sign-ins that issued an authorization code."},
	{ID: goGrant.MetricSignInFailure, Name: "gogrant_signin_failure_total", Help: "Sign-ins rejected for unknown user or wrong password."},
	{ID: goGrant.MetricSignInRateLimited, Name: "gogrant_signin_rate_limited_total", Help: "Sign-ins rejected by the login budget."},
	{ID: goGrant.MetricCodeExchangeSuccess, Name: "gogrant_code_exchange_success_total", Help: "Authorization codes exchanged for tokens."},
	{ID: goGrant.MetricCodeExchangeFailure, Name: "gogrant_code_exchange_failure_total", Help: "Failed authorization code exchanges."},
	{ID: goGrant.MetricRefreshSuccess, Name: "gogrant_refresh_success_total", Help: "Refresh token rotations."},
	{ID: goGrant.MetricRefreshFailure, Name: "gogrant_refresh_failure_total", Help: "Failed refresh token rotations."},
	{ID: goGrant.MetricRefreshReplayDetected, Name: "gogrant_refresh_replay_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: goGrant.MetricSessionCreated, Name: "gogrant_session_created_total", Help: "Sessions created at token issuance."},
	{ID: goGrant.MetricLogout, Name: "gogrant_logout_total", Help: "Single-session logouts."},
	{ID: goGrant.MetricLogoutAll, Name: "gogrant_logout_all_total", Help: "Close-all-sessions operations."},
	{ID: goGrant.MetricRecoveryRequested, Name: "gogrant_recovery_requested_total", Help: "Account recovery mails sent."},
	{ID: goGrant.MetricPasswordResetSuccess, Name: "gogrant_password_reset_success_total", Help: "Completed password resets."},
	{ID: goGrant.MetricPasswordResetFailure, Name: "gogrant_password_reset_failure_total", Help: "Rejected password resets."},
	{ID: goGrant.MetricEmailVerificationRequested, Name: "gogrant_email_verification_requested_total", Help: "Email verification mails sent."},
	{ID: goGrant.MetricEmailVerificationSuccess, Name: "gogrant_email_verification_success_total", Help: "Verified email addresses."},
	{ID: goGrant.MetricEmailVerificationFailure, Name: "gogrant_email_verification_failure_total", Help: "Rejected email verifications."},
	{ID: goGrant.MetricProviderSignUp, Name: "gogrant_provider_signup_total", Help: "Provider authorization URIs issued."},
	{ID: goGrant.MetricProviderCallbackSuccess, Name: "gogrant_provider_callback_success_total", Help: "Provider callbacks that issued an authorization code."},
	{ID: goGrant.MetricProviderCallbackFailure, Name: "gogrant_provider_callback_failure_total", Help: "Failed provider callbacks."},
	{ID: goGrant.MetricPasswordChangeSuccess, Name: "gogrant_password_change_success_total", Help: "Password changes."},
	{ID: goGrant.MetricAccountCompleted, Name: "gogrant_account_completed_total", Help: "Incomplete accounts promoted to the user store."},
	{ID: goGrant.MetricAccountDeleted, Name: "gogrant_account_deleted_total", Help: "Deleted accounts."},
	{ID: goGrant.MetricBookkeepingFailure, Name: "gogrant_session_bookkeeping_failure_total", Help: "Session index updates that failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGrant.MetricValidateLatency, Name: "gogrant_validate_latency_seconds", Help: "Access token validation latency."},
}

// EventsDroppedName is the counter of events dropped by the async dispatcher.
const (
	EventsDroppedName = "gogrant_events_dropped_total"
	EventsDroppedHelp = "Events dropped due to dispatcher backpressure."
)

// HistogramBounds are the bucket upper bounds as exposition labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are the finite bucket upper bounds in seconds. The
// last engine bucket is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix are the bounds in a form usable inside instrument names.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
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
