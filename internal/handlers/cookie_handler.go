package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// CookieSubmission is the manual fallback payload: cookies copied out of a
// real browser session when automation is blocked by the portal.
type CookieSubmission struct {
	Cookies map[string]string `json:"cookies"`
	Domain  string            `json:"domain,omitempty"`
}

// CookieHandler handles cookie record HTTP requests
type CookieHandler struct {
	store        interfaces.CookieStorage
	events       interfaces.EventService
	profile      *models.PortalProfile
	cookieMaxAge time.Duration
	logger       arbor.ILogger
}

// NewCookieHandler creates a new cookie handler
func NewCookieHandler(store interfaces.CookieStorage, events interfaces.EventService, profile *models.PortalProfile, cookieMaxAge time.Duration, logger arbor.ILogger) *CookieHandler {
	return &CookieHandler{
		store:        store,
		events:       events,
		profile:      profile,
		cookieMaxAge: cookieMaxAge,
		logger:       logger,
	}
}

// SubmitCookiesHandler handles POST requests with manually captured cookies.
// Submissions are held to the same completeness contract as automated
// harvests so a stored record is always usable downstream.
func (h *CookieHandler) SubmitCookiesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var submission CookieSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse cookie submission")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(submission.Cookies) == 0 {
		WriteError(w, http.StatusBadRequest, "at least one cookie is required")
		return
	}

	set := make(models.CookieSet, len(submission.Cookies))
	for name, value := range submission.Cookies {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = models.Cookie{
			Name:   name,
			Value:  value,
			Domain: submission.Domain,
		}
	}

	if !set.Complete(h.profile.RequiredCookies) {
		missing := set.Missing(h.profile.RequiredCookies)
		h.logger.Warn().
			Strs("missing", missing).
			Msg("Manual cookie submission rejected as incomplete")
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"status":  "error",
			"kind":    models.KindIncompleteCookieSet,
			"error":   "submitted cookie set is missing required cookies",
			"missing": missing,
		})
		return
	}

	record := models.NewCookieRecord(set, models.SourceManual)
	if err := h.store.Save(r.Context(), record); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist submitted cookies")
		WriteError(w, http.StatusInternalServerError, "Failed to store cookies")
		return
	}

	h.logger.Info().
		Strs("names", record.Cookies.Names()).
		Msg("Manual cookie submission stored")

	if h.events != nil {
		if err := h.events.Publish(r.Context(), interfaces.Event{
			Type: interfaces.EventCookiesUpdated,
			Payload: map[string]interface{}{
				"source":   string(models.SourceManual),
				"saved_at": record.SavedAt.Format(time.RFC3339),
				"names":    record.Cookies.Names(),
			},
		}); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to publish cookie update event")
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"message":  "Cookies stored",
		"names":    record.Cookies.Names(),
		"saved_at": record.SavedAt.Format(time.RFC3339),
	})
}

// GetCookiesHandler returns the current cookie record with a ready-to-use
// Cookie header string and a staleness verdict so callers can decide
// whether to trigger a fresh login before using it.
func (h *CookieHandler) GetCookiesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	record, err := h.store.Load(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrNoCookieRecord) {
			WriteError(w, http.StatusNotFound, "No cookie record saved yet")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to load cookie record")
		WriteError(w, http.StatusInternalServerError, "Failed to load cookies")
		return
	}

	staleness := common.CheckCookieStaleness(record, h.cookieMaxAge, time.Now())

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cookies":       record.Cookies,
		"source":        string(record.Source),
		"saved_at":      record.SavedAt.Format(time.RFC3339),
		"cookie_string": record.Cookies.HeaderString(),
		"stale":         staleness.IsStale,
		"stale_reason":  staleness.Reason,
	})
}
