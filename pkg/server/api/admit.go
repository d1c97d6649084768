package api

import "time"

// Admission statuses reported in AdmitResponse.Status.
const (
	StatusAdmitted = "admitted"
	StatusRejected = "rejected"
	StatusShadowed = "shadowed"
)

// Response headers set on /v1/admit.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderPolicy     = "X-RateLimit-Policy"
	HeaderRetryAfter = "Retry-After"
)

// AdmitResponse is the body of /v1/admit.
type AdmitResponse struct {
	Status    string `json:"status"`
	Policy    string `json:"policy"`
	Key       string `json:"key,omitempty"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`

	// Window is the policy window, e.g. "1s".
	Window string `json:"window"`

	// RetryAfterMS is how long until the window has room again.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`

	// Action is the policy's enforcement action.
	Action string `json:"action"`

	// Attempts and QueuedMS are set for queued requests.
	Attempts int   `json:"attempts,omitempty"`
	QueuedMS int64 `json:"queued_ms,omitempty"`

	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PolicyResponse describes one configured policy on /v1/policies.
type PolicyResponse struct {
	Name    string   `json:"name"`
	Limit   int      `json:"limit"`
	Window  string   `json:"window"`
	Stamp   string   `json:"stamp"`
	Action  string   `json:"action"`
	Routes  []string `json:"routes,omitempty"`
	Default bool     `json:"default"`
	Keys    int      `json:"keys"`
	Queued  int      `json:"queued"`
}

// PoliciesResponse is the body of /v1/policies.
type PoliciesResponse struct {
	Policies []PolicyResponse `json:"policies"`
}

// Millis converts d to whole milliseconds, rounding up so a client never
// retries early.
func Millis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
