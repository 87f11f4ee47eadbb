package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/httpx"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/requestctx"
)

const (
	defaultRoleClaim     = "role"
	defaultEmailClaim    = "email"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals any other verification failure.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// VerifiedToken is the provider-neutral result of token verification.
type VerifiedToken struct {
	Subject string
	Claims  map[string]any
}

// TokenVerifier verifies bearer tokens. JWTVerifier and FirebaseVerifier implement it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (VerifiedToken, error)
}

// Authenticator wires token verification into HTTP middleware.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
	timeout   time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireRoles verifies the Authorization bearer token and admits identities
// holding one of allowed. Missing or bad tokens get 401, a known token with an
// unrecognised or disallowed role gets 403.
func (a *Authenticator) RequireRoles(allowed ...domain.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
			verified, err := a.verifier.Verify(ctx, tokenStr)
			cancel()
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					respondAuthError(w, r, http.StatusUnauthorized, "token_expired", "bearer token expired")
				} else {
					respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "bearer token verification failed")
				}
				return
			}

			role, ok := domain.ParseUserRole(claimAsString(verified.Claims, a.roleClaim))
			if !ok {
				respondAuthError(w, r, http.StatusForbidden, "missing_role", "no recognised role associated with identity")
				return
			}
			identity := &Identity{
				UID:    verified.Subject,
				Email:  claimAsString(verified.Claims, defaultEmailClaim),
				Role:   role,
				Claims: verified.Claims,
			}
			if len(allowed) > 0 && !identity.HasRole(allowed...) {
				respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			ctx = WithIdentity(r.Context(), identity)
			who := []zap.Field{zap.String("user_id", identity.UID), zap.String("role", string(identity.Role))}
			requestctx.Annotate(ctx, who...)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(who...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// claimAsString reads a string claim. Role claims given as a list use their first entry.
func claimAsString(claims map[string]any, key string) string {
	switch v := claims[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return strings.TrimSpace(s)
		}
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
