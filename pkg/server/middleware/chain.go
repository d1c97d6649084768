package middleware

import "net/http"

// Chain applies middlewares so the first one listed is the outermost.
//
//	Chain(h, Recovery(...), RequestID, Tracing(...))
//
// serves a request through Recovery, then RequestID, then Tracing, then h.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
