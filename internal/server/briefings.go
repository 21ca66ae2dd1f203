package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/objectstore"
	"github.com/mohammad-safakhou/morningdrive/internal/queue/streams"
	"github.com/mohammad-safakhou/morningdrive/internal/store"
)

// BriefingsHandler creates, polls, cancels and serves briefings.
type BriefingsHandler struct {
	Store  *store.Store
	Queue  Enqueuer
	Media  objectstore.Storage
	Logger *log.Logger
	Now    func() time.Time
}

func (h *BriefingsHandler) Register(g *echo.Group) {
	g.POST("/briefings", h.create)
	g.GET("/briefings", h.list)
	g.GET("/briefings/:id", h.get)
	g.POST("/briefings/:id/cancel", h.cancel)
	g.GET("/briefings/:id/audio", h.audio)
}

func (h *BriefingsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// BriefingTitle is the placeholder title a briefing carries until the run names it.
func BriefingTitle(t time.Time) string {
	return "Morning Briefing - " + t.Format("January 2, 2006")
}

// create stores a pending briefing and enqueues its generation. A user
// without saved settings gets the defaults persisted first.
func (h *BriefingsHandler) create(c echo.Context) error {
	ctx := c.Request().Context()
	uid := userID(c)
	settings, ok, err := h.Store.GetUserSettings(ctx, uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		settings = briefing.DefaultUserSettings(uid)
		if err := h.Store.UpsertUserSettings(ctx, settings); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	title := BriefingTitle(h.now().In(settings.Normalize().Location()))
	b, err := h.Store.CreateBriefing(ctx, uid, title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := h.Queue.PublishBriefingRequested(ctx, streams.BriefingRequested{
		BriefingID: b.ID, UserID: uid, Trigger: streams.TriggerManual, RequestedAt: h.now().UTC(),
	}); err != nil {
		if h.Logger != nil {
			h.Logger.Printf("warn: enqueue briefing %s: %v", b.ID, err)
		}
		if _, ferr := h.Store.UpdateBriefingStatus(ctx, b.ID, briefing.StatusFailed); ferr != nil && h.Logger != nil {
			h.Logger.Printf("warn: mark briefing %s failed: %v", b.ID, ferr)
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not queue briefing")
	}
	return c.JSON(http.StatusAccepted, CreateBriefingResponse{ID: b.ID, Status: b.Status, Title: b.Title})
}

func (h *BriefingsHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.Store.ListBriefings(c.Request().Context(), userID(c), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]BriefingResponse, 0, len(items))
	for _, b := range items {
		out = append(out, briefingResponse(b))
	}
	return c.JSON(http.StatusOK, out)
}

// owned loads the briefing and hides other users' briefings behind a 404.
func (h *BriefingsHandler) owned(c echo.Context) (briefing.Briefing, error) {
	b, ok, err := h.Store.GetBriefing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return briefing.Briefing{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok || b.UserID != userID(c) {
		return briefing.Briefing{}, echo.NewHTTPError(http.StatusNotFound, "briefing not found")
	}
	return b, nil
}

func (h *BriefingsHandler) get(c echo.Context) error {
	b, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, briefingResponse(b))
}

func (h *BriefingsHandler) cancel(c echo.Context) error {
	b, err := h.owned(c)
	if err != nil {
		return err
	}
	changed, err := h.Store.CancelBriefing(c.Request().Context(), b.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !changed {
		return echo.NewHTTPError(http.StatusConflict, "briefing already finished")
	}
	return c.JSON(http.StatusOK, map[string]string{"id": b.ID, "status": string(briefing.StatusCancelled)})
}

func (h *BriefingsHandler) audio(c echo.Context) error {
	b, err := h.owned(c)
	if err != nil {
		return err
	}
	if !hasAudio(b) {
		return echo.NewHTTPError(http.StatusConflict, "audio not available")
	}
	rc, err := h.Media.Get(c.Request().Context(), b.AudioKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "audio missing from storage")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="briefing_`+b.ID+`.wav"`)
	return c.Stream(http.StatusOK, "audio/wav", rc)
}
