package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/store"
)

// SettingsHandler reads and writes user preferences and schedules.
type SettingsHandler struct {
	Store *store.Store
}

func (h *SettingsHandler) Register(g *echo.Group) {
	g.GET("/settings", h.getSettings)
	g.PUT("/settings", h.putSettings)
	g.GET("/schedule", h.getSchedule)
	g.PUT("/schedule", h.putSchedule)
}

func (h *SettingsHandler) getSettings(c echo.Context) error {
	uid := userID(c)
	u, ok, err := h.Store.GetUserSettings(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		u = briefing.DefaultUserSettings(uid)
	}
	return c.JSON(http.StatusOK, u.Normalize())
}

func (h *SettingsHandler) putSettings(c echo.Context) error {
	var u briefing.UserSettings
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u.UserID = userID(c)
	u = u.Normalize()
	if err := validateSettings(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.Store.UpsertUserSettings(c.Request().Context(), u); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

var orderableSegments = map[briefing.SegmentType]bool{
	briefing.SegmentNews:    true,
	briefing.SegmentSports:  true,
	briefing.SegmentWeather: true,
	briefing.SegmentFun:     true,
}

func validateSettings(u briefing.UserSettings) error {
	if u.LengthMode != briefing.LengthShort && u.LengthMode != briefing.LengthLong {
		return fmt.Errorf("length_mode must be short or long")
	}
	if _, err := time.LoadLocation(u.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", u.Timezone)
	}
	seen := make(map[briefing.SegmentType]bool, len(u.SegmentOrder))
	for _, t := range u.SegmentOrder {
		if !orderableSegments[t] {
			return fmt.Errorf("segment_order: unsupported segment %q", t)
		}
		if seen[t] {
			return fmt.Errorf("segment_order: duplicate segment %q", t)
		}
		seen[t] = true
	}
	if u.VoiceSpeed < 0.5 || u.VoiceSpeed > 2 {
		return fmt.Errorf("voice_speed must be between 0.5 and 2.0")
	}
	return nil
}

func (h *SettingsHandler) getSchedule(c echo.Context) error {
	uid := userID(c)
	sc, ok, err := h.Store.GetSchedule(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no schedule")
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *SettingsHandler) putSchedule(c echo.Context) error {
	var sc briefing.Schedule
	if err := c.Bind(&sc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sc.UserID = userID(c)
	if sc.Timezone == "" {
		sc.Timezone = briefing.DefaultUserSettings(sc.UserID).Timezone
	}
	if _, err := time.LoadLocation(sc.Timezone); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown timezone %q", sc.Timezone))
	}
	if sc.Hour < 0 || sc.Hour > 23 || sc.Minute < 0 || sc.Minute > 59 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid schedule time")
	}
	for _, d := range sc.DaysOfWeek {
		if d < 0 || d > 6 {
			return echo.NewHTTPError(http.StatusBadRequest, "days_of_week must be 0 (Monday) to 6 (Sunday)")
		}
	}
	if err := h.Store.UpsertSchedule(c.Request().Context(), sc); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sc)
}
