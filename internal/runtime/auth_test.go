package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type sessionsStub struct {
	live map[string]bool
	err  error
}

func (s sessionsStub) Valid(_ context.Context, id string) (bool, error) {
	return s.live[id], s.err
}

func serve(t *testing.T, mw []echo.MiddlewareFunc, token string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var seen string
	e.GET("/x", func(c echo.Context) error {
		seen, _ = SubjectFromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	}, mw...)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestEchoAuthMiddleware(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := SignJWT("admin", "sess-1", secret, time.Minute, ScopeAdmin)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	live := sessionsStub{live: map[string]bool{"sess-1": true}}

	rec, sub := serve(t, []echo.MiddlewareFunc{EchoAuthMiddleware(secret, live), RequireScopes(ScopeAdmin)}, tok)
	if rec.Code != http.StatusNoContent || sub != "admin" {
		t.Fatalf("expected pass, got %d sub=%q", rec.Code, sub)
	}

	rec, _ = serve(t, []echo.MiddlewareFunc{EchoAuthMiddleware(secret, sessionsStub{})}, tok)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session, got %d", rec.Code)
	}

	rec, _ = serve(t, []echo.MiddlewareFunc{EchoAuthMiddleware(secret, sessionsStub{err: errors.New("down")})}, tok)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when sessions unavailable, got %d", rec.Code)
	}

	rec, _ = serve(t, []echo.MiddlewareFunc{EchoAuthMiddleware([]byte("other"), live)}, tok)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}

	rec, _ = serve(t, []echo.MiddlewareFunc{EchoAuthMiddleware(secret, live)}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rec.Code)
	}
}

func TestRequireScopesRejectsMissing(t *testing.T) {
	secret := []byte("s3cret")
	tok, _ := SignJWT("user-1", "", secret, time.Minute)
	rec, _ := serve(t, []echo.MiddlewareFunc{EchoAuthMiddleware(secret, nil), RequireScopes(ScopeAdmin)}, tok)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestParseJWTExpired(t *testing.T) {
	secret := []byte("s3cret")
	tok, _ := SignJWT("u", "", secret, -time.Minute)
	if _, err := ParseJWT(tok, secret); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}
