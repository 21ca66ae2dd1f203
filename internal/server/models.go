package server

import (
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AdminLoginRequest represents the admin login payload.
type AdminLoginRequest struct {
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateBriefingResponse acknowledges a queued briefing.
type CreateBriefingResponse struct {
	ID     string          `json:"id"`
	Status briefing.Status `json:"status"`
	Title  string          `json:"title"`
}

// BriefingResponse is the polling view of a briefing.
type BriefingResponse struct {
	ID               string                     `json:"id"`
	Title            string                     `json:"title"`
	Status           briefing.Status            `json:"status"`
	GenerationErrors []briefing.GenerationError `json:"generation_errors"`
	PendingAction    *briefing.PendingAction    `json:"pending_action,omitempty"`
	Timeline         *briefing.Timeline         `json:"segments_metadata,omitempty"`
	DurationSeconds  float64                    `json:"duration_seconds"`
	AudioURL         string                     `json:"audio_url,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

func briefingResponse(b briefing.Briefing) BriefingResponse {
	resp := BriefingResponse{
		ID:               b.ID,
		Title:            b.Title,
		Status:           b.Status,
		GenerationErrors: b.GenerationErrors,
		PendingAction:    b.PendingAction,
		Timeline:         b.Timeline,
		DurationSeconds:  b.DurationSeconds,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	if resp.GenerationErrors == nil {
		resp.GenerationErrors = []briefing.GenerationError{}
	}
	if hasAudio(b) {
		resp.AudioURL = "/api/briefings/" + b.ID + "/audio"
	}
	return resp
}

func hasAudio(b briefing.Briefing) bool {
	return b.AudioKey != "" && (b.Status == briefing.StatusCompleted || b.Status == briefing.StatusCompletedWithWarnings)
}

// MusicPieceRequest registers an uploaded piece in the catalog.
type MusicPieceRequest struct {
	Composer        string  `json:"composer"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	DurationSeconds float64 `json:"duration_seconds"`
	ObjectKey       string  `json:"s3_key"`
	DayOfYearStart  int     `json:"day_of_year_start"`
	DayOfYearEnd    int     `json:"day_of_year_end"`
	Active          *bool   `json:"is_active"`
}
