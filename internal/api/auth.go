package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/smilecare/dental-scheduling/internal/identity"
)

// tokenClaims mirrors what the identity provider signs. The engine trusts the
// role and profile references as-is.
type tokenClaims struct {
	Role      string `json:"role"`
	DentistID string `json:"dentist_id,omitempty"`
	PatientID string `json:"patient_id,omitempty"`
	Locale    string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the bearer token into an identity.Actor on the
// request context. Requests without a token proceed anonymously; routes that
// need a role enforce it via RequireDentist / RequireUser.
func Authenticator(secret string) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")
			if raw == header {
				writeError(w, http.StatusUnauthorized, "invalid_token", "authorization header must be a bearer token")
				return
			}

			var claims tokenClaims
			token, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token subject must be a UUID")
				return
			}

			actor := identity.Actor{
				UserID: userID,
				Role:   identity.Role(claims.Role),
				Locale: claims.Locale,
			}
			if id, err := uuid.Parse(claims.DentistID); err == nil {
				actor.DentistID = id
			}
			if id, err := uuid.Parse(claims.PatientID); err == nil {
				actor.PatientID = id
			}

			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity.FromContext(r.Context()).IsAnonymous() {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "this endpoint requires a signed-in user")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDentist rejects any caller the identity provider did not flag as a
// dentist.
func RequireDentist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity.FromContext(r.Context()).IsDentist() {
			writeError(w, http.StatusForbidden, "forbidden", "this endpoint requires the dentist role")
			return
		}
		next.ServeHTTP(w, r)
	})
}
