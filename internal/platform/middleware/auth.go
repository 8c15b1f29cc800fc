package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "trustdoc/pkg/domain"
)

// SessionClaims are the claims the credential provider places in session tokens.
// The core consumes them only to attribute actions in the audit trail.
type SessionClaims struct {
	InstitutionID string `json:"institution_id,omitempty"`
	Role          string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidator validates session tokens issued by the credential provider.
// It is the only process-wide session state; construct it once in main and
// pass it explicitly (no globals).
type SessionValidator struct {
	signingKey []byte
}

// NewSessionValidator creates a validator for HS256-signed session tokens.
func NewSessionValidator(signingKey string) *SessionValidator {
	return &SessionValidator{signingKey: []byte(signingKey)}
}

// Validate parses and verifies a token string, returning its claims.
func (v *SessionValidator) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

type actorKey struct{}
type institutionKey struct{}

// Actor identifies the authenticated caller for audit attribution.
type Actor struct {
	ID            id.ActorID
	InstitutionID id.InstitutionID
	Role          string
}

// resolveActor validates the bearer token on the request, if any, and
// returns the actor it identifies.
func resolveActor(v *SessionValidator, r *http.Request) (Actor, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return Actor{}, false
	}

	claims, err := v.Validate(strings.TrimPrefix(authz, "Bearer "))
	if err != nil {
		return Actor{}, false
	}

	actorID, err := id.ParseActorID(claims.Subject)
	if err != nil || actorID.IsNil() {
		return Actor{}, false
	}

	actor := Actor{ID: actorID, Role: claims.Role}
	if claims.InstitutionID != "" {
		if instID, err := id.ParseInstitutionID(claims.InstitutionID); err == nil {
			actor.InstitutionID = instID
		}
	}
	return actor, true
}

func withActor(r *http.Request, actor Actor) *http.Request {
	ctx := context.WithValue(r.Context(), actorKey{}, actor)
	ctx = context.WithValue(ctx, institutionKey{}, actor.InstitutionID)
	return r.WithContext(ctx)
}

// RequireActor rejects requests without a valid bearer token and stores the
// resolved actor in the request context.
func RequireActor(v *SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := resolveActor(v, r)
			if !ok {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, withActor(r, actor))
		})
	}
}

// OptionalActor resolves a bearer token when one is presented but lets
// anonymous requests through. Public endpoints use it so a signed-in caller
// is still attributed in the audit trail.
func OptionalActor(v *SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := resolveActor(v, r); ok {
				r = withActor(r, actor)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetActor retrieves the authenticated actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}
