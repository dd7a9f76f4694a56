package web

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"

	appLog "dayplan/internal/log"
)

// TokenVerifier checks a bearer ID token and returns the user ID.
type TokenVerifier interface {
	VerifyUID(ctx context.Context, idToken string) (string, error)
}

// FirebaseVerifier verifies Firebase Auth ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier gets the Auth client of app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: error getting Auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyUID implements TokenVerifier.
func (v *FirebaseVerifier) VerifyUID(ctx context.Context, idToken string) (string, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}
	return tok.UID, nil
}

type ownerKey struct{}

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// ownerFrom returns the owner ID resolved by authMiddleware.
func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable basic auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// authMiddleware resolves the owner of each request, except /health which
// is always open. A Bearer token verified by Firebase makes its UID the
// owner; valid basic credentials act as the configured owner. With neither
// mechanism configured every request acts as the configured owner.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	basic := s.basicAuthEnabled()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		owner := ""
		if token, ok := bearerToken(r); ok && s.verifier != nil {
			uid, err := s.verifier.VerifyUID(r.Context(), token)
			if err != nil {
				appLog.Warn("ID token rejected", "path", r.URL.Path, "err", err.Error())
				s.unauthorized(w, basic)
				return
			}
			owner = uid
		} else if basic {
			u, p, ok := r.BasicAuth()
			if !ok || !secureCompare(u, s.cfg.BasicAuth.Username) || !secureCompare(p, s.cfg.BasicAuth.Password) {
				s.unauthorized(w, basic)
				return
			}
			owner = s.cfg.OwnerID
		} else if s.verifier != nil {
			s.unauthorized(w, basic)
			return
		} else {
			owner = s.cfg.OwnerID
		}

		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, basic bool) {
	if basic {
		w.Header().Set("WWW-Authenticate", `Basic realm="Dayplan", charset="UTF-8"`)
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
