package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// LoginHandler handles login flow HTTP requests
type LoginHandler struct {
	loginService interfaces.LoginService
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewLoginHandler creates a new login handler
func NewLoginHandler(loginService interfaces.LoginService, logger arbor.ILogger) *LoginHandler {
	return &LoginHandler{
		loginService: loginService,
		validate:     validator.New(),
		logger:       logger,
	}
}

// TriggerLoginHandler handles POST requests that run one complete login flow.
// The response carries the flow's terminal result; the HTTP status code maps
// the outcome so callers can branch without parsing the body.
func (h *LoginHandler) TriggerLoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse login request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(creds); err != nil {
		WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	h.logger.Info().Str("username", creds.Username).Msg("Login flow triggered via API")

	result, err := h.loginService.Login(r.Context(), creds)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBusy):
			WriteJSON(w, http.StatusConflict, map[string]string{
				"status": "error",
				"kind":   models.KindBusy,
				"error":  err.Error(),
			})
		case errors.Is(err, models.ErrLoginThrottled):
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"status": "error",
				"kind":   models.KindBusy,
				"error":  err.Error(),
			})
		default:
			h.logger.Error().Err(err).Msg("Login flow failed to start")
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteJSON(w, statusCodeFor(result), result)
}

// GetLoginStatusHandler returns the current flow status
func (h *LoginHandler) GetLoginStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.loginService.Status())
}

// statusCodeFor maps a terminal flow result onto an HTTP status code.
// Challenge pages are the portal refusing automation, not a service fault,
// so they get their own code.
func statusCodeFor(result *models.LoginResult) int {
	if result.Status == models.LoginSucceeded {
		return http.StatusOK
	}
	if result.ErrorKind == models.KindChallengeBlocked {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
