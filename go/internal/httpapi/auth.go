package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Admin is the identity carried by a verified bearer token.
type Admin struct {
	ID    string
	Email string
	Role  string
}

type adminClaims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 admin tokens. Issuing them is another
// service's job.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Verify(raw string) (Admin, error) {
	var claims adminClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return Admin{}, fmt.Errorf("verify admin token: %w", err)
	}
	if claims.ID == "" {
		return Admin{}, errors.New("admin token has no id")
	}
	return Admin{ID: claims.ID, Email: claims.Email, Role: claims.Role}, nil
}

type ctxKey int

const ctxKeyAdmin ctxKey = iota

func adminFromContext(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(ctxKeyAdmin).(Admin)
	return a, ok
}

// requireAdmin accepts "Authorization: Bearer <token>", or a token query
// parameter for WebSocket clients that cannot set headers.
func (a *Authenticator) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		admin, err := a.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAdmin, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, prefix) {
		token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		return token, token != ""
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}
