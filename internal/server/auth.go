package server

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/morningdrive/internal/auth"
	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/runtime"
	"github.com/mohammad-safakhou/morningdrive/internal/store"
)

// AdminHandler serves the admin login and music catalog.
type AdminHandler struct {
	Store        *store.Store
	Sessions     *auth.SessionStore
	Secret       []byte
	PasswordHash string
}

func (a *AdminHandler) Register(g *echo.Group) {
	g.POST("/login", a.login)
	var checker runtime.SessionChecker
	if a.Sessions != nil {
		checker = a.Sessions
	}
	protected := g.Group("", runtime.EchoAuthMiddleware(a.Secret, checker), runtime.RequireScopes(runtime.ScopeAdmin))
	protected.DELETE("/session", a.logout)
	protected.GET("/music", a.listMusic)
	protected.POST("/music", a.addMusic)
}

// Login
//
//	@Summary		Admin login
//	@Description	Checks the admin password and returns a session-bound JWT in cookie and body
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AdminLoginRequest	true	"Login payload"
//	@Success		200		{object}	TokenResponse
//	@Failure		401		{object}	HTTPError
//	@Router			/api/admin/login [post]
func (a *AdminHandler) login(c echo.Context) error {
	var req AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := auth.CheckPassword(a.PasswordHash, req.Password); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if a.Sessions == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sessions unavailable")
	}
	sess, err := a.Sessions.Create(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	signed, err := runtime.SignJWT("admin", sess.ID, a.Secret, a.Sessions.TTL(), runtime.ScopeAdmin)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	cookie.Expires = sess.ExpiresAt
	if os.Getenv("MORNINGDRIVE_ENV") == "prod" {
		cookie.Secure = true
	}
	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, TokenResponse{Token: signed, ExpiresAt: sess.ExpiresAt})
}

// logout revokes the server-side session so the token stops working.
func (a *AdminHandler) logout(c echo.Context) error {
	if sid, ok := runtime.SessionFromContext(c.Request().Context()); ok {
		if err := a.Sessions.Revoke(c.Request().Context(), sid); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusNoContent)
}

func (a *AdminHandler) listMusic(c echo.Context) error {
	items, err := a.Store.ListMusicPieces(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []briefing.MusicPiece{}
	}
	return c.JSON(http.StatusOK, items)
}

var errInvalidPiece = errors.New("composer, title and s3_key are required")

func (a *AdminHandler) addMusic(c echo.Context) error {
	var req MusicPieceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := req.piece()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := a.Store.InsertMusicPiece(c.Request().Context(), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	p.ID = id
	return c.JSON(http.StatusCreated, p)
}

// piece validates the request; an unset window covers the whole year.
func (r MusicPieceRequest) piece() (briefing.MusicPiece, error) {
	if strings.TrimSpace(r.Composer) == "" || strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.ObjectKey) == "" {
		return briefing.MusicPiece{}, errInvalidPiece
	}
	start, end := r.DayOfYearStart, r.DayOfYearEnd
	if start == 0 && end == 0 {
		start, end = 1, 366
	}
	if start < 1 || end > 366 || start > end {
		return briefing.MusicPiece{}, errors.New("day_of_year window must satisfy 1 <= start <= end <= 366")
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return briefing.MusicPiece{
		Composer:        strings.TrimSpace(r.Composer),
		Title:           strings.TrimSpace(r.Title),
		Description:     r.Description,
		DurationSeconds: r.DurationSeconds,
		ObjectKey:       r.ObjectKey,
		DayOfYearStart:  start,
		DayOfYearEnd:    end,
		Active:          active,
	}, nil
}
