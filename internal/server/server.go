package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/morningdrive/internal/auth"
	"github.com/mohammad-safakhou/morningdrive/internal/objectstore"
	"github.com/mohammad-safakhou/morningdrive/internal/queue/streams"
	"github.com/mohammad-safakhou/morningdrive/internal/runtime"
	"github.com/mohammad-safakhou/morningdrive/internal/store"
)

// Enqueuer hands a briefing to the worker pool.
type Enqueuer interface {
	PublishBriefingRequested(ctx context.Context, req streams.BriefingRequested) (string, error)
}

// Deps are the shared dependencies of the HTTP API.
type Deps struct {
	Store     *store.Store
	Queue     Enqueuer
	Media     objectstore.Storage
	Sessions  *auth.SessionStore
	Secret    []byte
	AdminHash string
	Metrics   http.Handler
	Logger    *log.Logger
	Debug     bool
}

// New builds the echo instance with every route mounted.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Debug = d.Debug
	e.Use(middleware.Recover())
	logger := d.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie", HeaderUserID},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metrics))

	api := e.Group("/api")
	user := api.Group("", identify(d.Secret, d.Sessions))
	(&BriefingsHandler{Store: d.Store, Queue: d.Queue, Media: d.Media, Logger: logger}).Register(user)
	(&SettingsHandler{Store: d.Store}).Register(user)

	admin := &AdminHandler{Store: d.Store, Sessions: d.Sessions, Secret: d.Secret, PasswordHash: d.AdminHash}
	admin.Register(api.Group("/admin"))
	return e
}

// Run serves e on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	if addr == "" {
		addr = ":10001"
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] listening on %s", addr)
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// HeaderUserID identifies the caller when no bearer token is sent.
const HeaderUserID = "X-User-ID"

// identify resolves the caller from a JWT (subject) or the X-User-ID header.
func identify(secret []byte, sessions *auth.SessionStore) echo.MiddlewareFunc {
	var checker runtime.SessionChecker
	if sessions != nil {
		checker = sessions
	}
	jwtAuth := runtime.EchoAuthMiddleware(secret, checker)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := jwtAuth(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) != "" && len(secret) > 0 {
				return withToken(c)
			}
			uid := c.Request().Header.Get(HeaderUserID)
			if uid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
			}
			c.Set("user_id", uid)
			c.SetRequest(c.Request().WithContext(runtime.ContextWithSubject(c.Request().Context(), uid)))
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	if uid, ok := c.Get("user_id").(string); ok {
		return uid
	}
	return ""
}
