// Package auth turns the bearer token issued by the identity provider into a
// dashboard session. Credentials are never handled here.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/observability"
)

const loginMessage = "No active session found. Please log in."

// Claims are the token claims the dashboard reads.
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	SalesPerson string `json:"sales_person,omitempty"`
}

// Session is an authenticated user and the token used for downstream calls.
type Session struct {
	Subject     string
	Email       string
	SalesPerson string
	Token       string
	ExpiresAt   time.Time
}

// Expired reports whether the token has passed its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Authenticator reads sessions from requests.
type Authenticator struct {
	secret     []byte
	skipVerify bool
	cookieName string
	parser     *jwt.Parser
	now        func() time.Time
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{
		skipVerify: cfg.InsecureSkipVerify,
		cookieName: cfg.CookieName,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
		now:        time.Now,
	}
	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
	}
	return a
}

// CookieName is the name of the session cookie.
func (a *Authenticator) CookieName() string {
	return a.cookieName
}

// Verifies reports whether token signatures are checked locally.
func (a *Authenticator) Verifies() bool {
	return len(a.secret) > 0
}

// Parse validates token and builds a session from its claims. Signatures are
// checked against the configured secret. With neither a secret nor
// InsecureSkipVerify every token is rejected; in skip-verify mode unsigned
// tokens still are. Expiry is always checked.
func (a *Authenticator) Parse(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, errors.Unauthorized(loginMessage)
	}

	claims := &Claims{}
	switch {
	case a.Verifies():
		parsed, err := a.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		})
		if err != nil {
			return Session{}, classify(err)
		}
		if !parsed.Valid {
			return Session{}, errors.Unauthorized("Invalid session token. Please log in.")
		}
	case a.skipVerify:
		parsed, _, err := a.parser.ParseUnverified(token, claims)
		if err != nil {
			return Session{}, errors.Wrap(err, errors.CodeUnauthorized, "Invalid session token. Please log in.")
		}
		if parsed.Method == nil || parsed.Method.Alg() == jwt.SigningMethodNone.Alg() {
			return Session{}, errors.Unauthorized("Unsigned session tokens are not accepted. Please log in.")
		}
	default:
		return Session{}, errors.Unauthorized("Session verification is not configured. Please contact an administrator.")
	}

	session := Session{
		Subject:     claims.Subject,
		Email:       claims.Email,
		SalesPerson: claims.SalesPerson,
		Token:       token,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if session.Expired(a.now()) {
		return Session{}, errors.SessionExpired("Your session has expired. Please log in again.")
	}
	if session.Subject == "" {
		return Session{}, errors.Unauthorized("Session token has no subject. Please log in.")
	}
	return session, nil
}

func classify(err error) error {
	var validation *jwt.ValidationError
	if stderrors.As(err, &validation) && validation.Errors&jwt.ValidationErrorExpired != 0 {
		return errors.SessionExpired("Your session has expired. Please log in again.")
	}
	return errors.Wrap(err, errors.CodeUnauthorized, "Invalid session token. Please log in.")
}

// FromRequest reads the token from the Authorization header or, failing
// that, the session cookie.
func (a *Authenticator) FromRequest(r *http.Request) (Session, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return Session{}, errors.Unauthorized("Invalid authorization header format")
		}
		return a.Parse(token)
	}

	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return Session{}, errors.Unauthorized(loginMessage)
	}
	return a.Parse(cookie.Value)
}

// SetCookie stores the session token in an HTTP-only cookie.
func (a *Authenticator) SetCookie(w http.ResponseWriter, r *http.Request, s Session) {
	cookie := &http.Cookie{
		Name:     a.cookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if !s.ExpiresAt.IsZero() {
		cookie.Expires = s.ExpiresAt
	}
	http.SetCookie(w, cookie)
}

// ClearCookie removes the session cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by RequireSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// RequireSession rejects requests without a valid session. Page requests are
// redirected to loginPath; everything else gets a JSON error.
func RequireSession(a *Authenticator, logger *slog.Logger, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := a.FromRequest(r)
			if err != nil {
				if wantsHTML(r) {
					target := loginPath
					if errors.HasCode(err, errors.CodeSessionExpired) {
						target = fmt.Sprintf("%s?expired=1", loginPath)
					}
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}
				errors.WriteError(w, logger, err, observability.GetRequestID(r.Context()))
				return
			}

			ctx := WithSession(r.Context(), session)
			ctx = observability.WithSubject(ctx, session.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet || r.Header.Get("Datastar-Request") != "" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
