package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/turnstile/pkg/limits"
	"mercator-hq/turnstile/pkg/server/api"
	"mercator-hq/turnstile/pkg/server/middleware"
	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// Request parameters of /v1/admit.
const (
	paramKey    = "key"
	paramPolicy = "policy"
	paramRoute  = "route"

	// originalURIHeader carries the path of the protected request when the
	// service is used behind a forward-auth proxy.
	originalURIHeader = "X-Original-URI"
)

// admitHandler answers whether one request for a key may proceed.
//
// The key is the tenant named by the caller's credentials (API key or
// client certificate), then the configured key header, then ?key=, then the
// configured default key. The policy is ?policy= or, failing that, the one
// whose route prefix matches ?route= or X-Original-URI.
func (s *Server) admitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submittedAt := time.Now()
		requestID := middleware.GetRequestID(r.Context())

		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			api.WriteError(w, http.StatusMethodNotAllowed,
				api.NewError(http.StatusMethodNotAllowed, "use GET or POST").WithRequestID(requestID))
			return
		}

		key, ok := s.tenantKey(r)
		if !ok {
			api.WriteError(w, http.StatusBadRequest,
				api.NewError(http.StatusBadRequest, "missing tenant key: set "+s.config.KeyHeader+" or ?key=").
					WithParam(paramKey).WithRequestID(requestID))
			return
		}

		if !sleepCtx(r.Context(), s.config.SimulatedDelay) {
			return
		}

		route := r.URL.Query().Get(paramRoute)
		if route == "" {
			route = r.Header.Get(originalURIHeader)
		}

		d, err := s.admitter.Admit(r.Context(), limits.Request{
			Policy:      r.URL.Query().Get(paramPolicy),
			Route:       route,
			Key:         key,
			SubmittedAt: submittedAt,
			RequestID:   requestID,
		})
		if err != nil {
			s.writeAdmitError(w, r, d, err)
			return
		}

		setLimitHeaders(w, d)

		resp := admitResponse(d, requestID)
		status := http.StatusOK
		if !d.Allowed {
			status = http.StatusTooManyRequests
			w.Header().Set(api.HeaderRetryAfter, retryAfterSeconds(d.RetryAfter))
		}
		api.WriteJSON(w, status, resp)
	}
}

// tenantKey extracts the tenant key. The boolean is false when the request
// has none and no default key is configured.
func (s *Server) tenantKey(r *http.Request) (string, bool) {
	if tenant := logging.GetTenant(r.Context()); tenant != "" {
		return tenant, true
	}
	if s.config.KeyHeader != "" {
		if key := r.Header.Get(s.config.KeyHeader); key != "" {
			return key, true
		}
	}
	if key := r.URL.Query().Get(paramKey); key != "" {
		return key, true
	}
	if s.config.DefaultKey != "" {
		return s.config.DefaultKey, true
	}
	return "", false
}

func (s *Server) writeAdmitError(w http.ResponseWriter, r *http.Request, d *limits.Decision, err error) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, limits.ErrUnknownPolicy):
		api.WriteError(w, http.StatusNotFound,
			api.NewError(http.StatusNotFound, err.Error()).WithParam(paramPolicy).WithRequestID(requestID))

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		if d != nil {
			setLimitHeaders(w, d)
			w.Header().Set(api.HeaderRetryAfter, retryAfterSeconds(d.RetryAfter))
		}
		api.WriteError(w, http.StatusServiceUnavailable,
			api.NewError(http.StatusServiceUnavailable, err.Error()).WithRequestID(requestID))

	case errors.Is(err, limits.ErrClosed):
		api.WriteError(w, http.StatusServiceUnavailable,
			api.NewError(http.StatusServiceUnavailable, "service is shutting down").WithRequestID(requestID))

	default:
		s.logger.ErrorContext(r.Context(), "admission failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError,
			api.NewError(http.StatusInternalServerError, "admission failed").WithRequestID(requestID))
	}
}

// policiesHandler lists the configured policies.
func (s *Server) policiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			api.WriteError(w, http.StatusMethodNotAllowed,
				api.NewError(http.StatusMethodNotAllowed, "use GET").WithRequestID(middleware.GetRequestID(r.Context())))
			return
		}

		infos := s.admitter.Policies()
		resp := api.PoliciesResponse{Policies: make([]api.PolicyResponse, 0, len(infos))}
		for _, p := range infos {
			resp.Policies = append(resp.Policies, api.PolicyResponse{
				Name:    p.Name,
				Limit:   p.Limit,
				Window:  p.Window.String(),
				Stamp:   p.Stamp,
				Action:  p.Action,
				Routes:  p.Routes,
				Default: p.Default,
				Keys:    p.Keys,
				Queued:  p.Queued,
			})
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

func admitResponse(d *limits.Decision, requestID string) api.AdmitResponse {
	status := api.StatusAdmitted
	switch {
	case d.Shadowed():
		status = api.StatusShadowed
	case !d.Allowed:
		status = api.StatusRejected
	}

	return api.AdmitResponse{
		Status:       status,
		Policy:       d.Policy,
		Key:          d.Key,
		Limit:        d.Limit,
		Remaining:    d.Remaining,
		Window:       d.Window.String(),
		RetryAfterMS: api.Millis(d.RetryAfter),
		Action:       string(d.Action),
		Attempts:     d.Attempts,
		QueuedMS:     api.Millis(d.Queued),
		Reason:       d.Reason,
		RequestID:    requestID,
	}
}

func setLimitHeaders(w http.ResponseWriter, d *limits.Decision) {
	h := w.Header()
	h.Set(api.HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(api.HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(api.HeaderPolicy, d.Policy)
}

// retryAfterSeconds formats d for the Retry-After header: whole seconds,
// rounded up, at least 1.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// sleepCtx sleeps for d unless ctx ends first. It reports whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
