package middleware

import (
	"net/http"
	"strings"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/auth"
)

// Headers read when caller headers are trusted, for deployments behind an
// authenticating gateway.
const (
	CallerIDHeader   = "X-Caller-ID"
	CallerRoleHeader = "X-Caller-Role"
)

// Authenticate resolves the caller and stores it with domain.WithCaller.
// A Bearer token must verify; without one the caller headers are used when
// trustHeaders is set. Requests without any identity pass through anonymous
// and the handlers that need a caller reject them.
func Authenticate(jwtManager *auth.JWTManager, trustHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
					return
				}
				if jwtManager == nil {
					http.Error(w, "token authentication is disabled", http.StatusUnauthorized)
					return
				}

				claims, err := jwtManager.Verify(parts[1])
				if err != nil {
					http.Error(w, "invalid or expired token", http.StatusUnauthorized)
					return
				}

				next.ServeHTTP(w, r.WithContext(domain.WithCaller(r.Context(), claims.Caller())))
				return
			}

			if trustHeaders {
				if id := r.Header.Get(CallerIDHeader); id != "" {
					role := domain.Role(strings.ToLower(r.Header.Get(CallerRoleHeader)))
					if role == "" {
						role = domain.RoleTrader
					}
					if !role.IsValid() {
						http.Error(w, "unknown caller role", http.StatusUnauthorized)
						return
					}

					caller := domain.Caller{ID: id, Role: role}
					next.ServeHTTP(w, r.WithContext(domain.WithCaller(r.Context(), caller)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects requests whose caller holds none of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := domain.CallerFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "insufficient permissions", http.StatusForbidden)
		})
	}
}
