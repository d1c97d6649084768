package auth

import (
	"errors"
	"net/http"
	"strings"

	"mercator-hq/turnstile/pkg/server/api"
	"mercator-hq/turnstile/pkg/telemetry/logging"
)

const bearerScheme = "Bearer "

// Middleware rejects requests without a valid API key with 401. An
// authenticated key that names a tenant puts it in the request context
// (logging.WithTenant), where it takes precedence over any tenant the
// request names itself.
//
// header is where the key is read from; for "Authorization" the value must
// use the Bearer scheme.
func Middleware(validator *APIKeyValidator, header string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := validator.Validate(extractKey(r, header))
			if err != nil {
				logger.WarnContext(r.Context(), "authentication failed",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeUnauthorized(w, r, header, err)
				return
			}

			logger.DebugContext(r.Context(), "API key authenticated", "key", id.KeyHash, "tenant", id.Tenant)

			ctx := r.Context()
			if id.Tenant != "" {
				ctx = logging.WithTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request, header string) string {
	value := r.Header.Get(header)
	if !strings.EqualFold(header, "Authorization") {
		return strings.TrimSpace(value)
	}
	if len(value) < len(bearerScheme) || !strings.EqualFold(value[:len(bearerScheme)], bearerScheme) {
		return ""
	}
	return strings.TrimSpace(value[len(bearerScheme):])
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, header string, err error) {
	if strings.EqualFold(header, "Authorization") {
		w.Header().Set("WWW-Authenticate", `Bearer realm="turnstile"`)
	}

	msg := "invalid API key"
	if errors.Is(err, ErrMissingKey) {
		msg = "missing API key: set " + header
	}
	api.WriteError(w, http.StatusUnauthorized,
		api.NewError(http.StatusUnauthorized, msg).WithRequestID(logging.GetRequestID(r.Context())))
}
