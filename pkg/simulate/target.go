package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mercator-hq/turnstile/pkg/limits/ratelimit"
	"mercator-hq/turnstile/pkg/telemetry/tracing"
)

// Target answers admission requests for a key.
type Target interface {
	// Admit returns the HTTP-style status of the decision: 200 when
	// admitted, 429 when rejected. Any other status is reported as is.
	Admit(ctx context.Context, key string) (int, error)
}

// GateTarget asks an in-process gate.
type GateTarget struct {
	gate *ratelimit.Gate[string]
}

// NewGateTarget wraps gate.
func NewGateTarget(gate *ratelimit.Gate[string]) *GateTarget {
	return &GateTarget{gate: gate}
}

// Admit implements Target.
func (g *GateTarget) Admit(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if g.gate.TryAdmit(key).Admitted() {
		return http.StatusOK, nil
	}
	return http.StatusTooManyRequests, nil
}

// HTTPTarget asks a running decision service.
type HTTPTarget struct {
	client    *http.Client
	endpoint  string
	keyHeader string
}

// HTTPOption configures an HTTPTarget.
type HTTPOption func(*HTTPTarget)

// WithHTTPClient sets the client. Default: a client with a 30s timeout.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPTarget) {
		if client != nil {
			h.client = client
		}
	}
}

// WithKeyHeader sets the header carrying the tenant key.
// Default: X-Tenant-ID.
func WithKeyHeader(header string) HTTPOption {
	return func(h *HTTPTarget) {
		if header != "" {
			h.keyHeader = header
		}
	}
}

// NewHTTPTarget builds a target for the service at baseURL. policy may be
// empty to let the service pick by route or default.
func NewHTTPTarget(baseURL, policy string, opts ...HTTPOption) (*HTTPTarget, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", baseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/admit"
	if policy != "" {
		q := u.Query()
		q.Set("policy", policy)
		u.RawQuery = q.Encode()
	}

	h := &HTTPTarget{
		client:    &http.Client{Timeout: 30 * time.Second},
		endpoint:  u.String(),
		keyHeader: "X-Tenant-ID",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Admit implements Target.
func (h *HTTPTarget) Admit(ctx context.Context, key string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(h.keyHeader, key)
	tracing.Inject(ctx, req.Header)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, fmt.Errorf("admit %s: %w", key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Endpoint returns the URL requests are sent to.
func (h *HTTPTarget) Endpoint() string {
	return h.endpoint
}
