package middleware

import (
	"net/http"
)

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Session-ID"
	corsMaxAge       = "600"
)

// OriginAllowed reports whether a browser origin may call the API. "*" in
// allowedOrigins admits every origin.
func OriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func allowsAny(allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return true
		}
	}
	return false
}

// CORSMiddleware answers preflight requests and tags responses to origins in
// allowedOrigins. Dashboards send X-Session-ID, so it is always allowed.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := allowsAny(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && OriginAllowed(origin, allowedOrigins)

			switch {
			case allowed && wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
