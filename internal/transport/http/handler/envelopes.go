package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kurbanlink/api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AuthEnvelope wraps login/register/refresh responses.
type AuthEnvelope struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Session      *domain.Session `json:"session,omitempty"`
	User         *domain.User    `json:"user,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *domain.Session `json:"session,omitempty"`
	User    *domain.User    `json:"user,omitempty"`
}

// PaginatedUsersEnvelope wraps cursor-paginated user list responses.
type PaginatedUsersEnvelope struct {
	Data       []domain.User `json:"data"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// OTPEnvelope wraps a successful code issuance. The code itself never appears
// here; it travels by email only.
type OTPEnvelope struct {
	Status           string `json:"status"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// VerifiedEnvelope wraps a successful code verification. The verification
// token is surfaced exactly once.
type VerifiedEnvelope struct {
	Status            string `json:"status"`
	VerificationToken string `json:"verification_token"`
	ExpiresInSeconds  int    `json:"expires_in_seconds"`
}

// RateLimitedEnvelope reports the exact wait before the next issuance.
type RateLimitedEnvelope struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func writeReason(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, Reason: reason})
}

// writeServiceError maps domain sentinels onto HTTP statuses and stable
// machine-readable reason codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, RateLimitedEnvelope{
			Error:             "too many requests",
			RetryAfterSeconds: rl.RetryAfterSeconds,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrNoActiveChallenge):
		writeReason(w, http.StatusBadRequest, err.Error(), "no-active-code")
	case errors.Is(err, domain.ErrChallengeExpired):
		writeReason(w, http.StatusBadRequest, err.Error(), "expired")
	case errors.Is(err, domain.ErrChallengeLocked):
		writeReason(w, http.StatusBadRequest, err.Error(), "locked")
	case errors.Is(err, domain.ErrCodeMismatch):
		writeReason(w, http.StatusBadRequest, err.Error(), "mismatch")
	case errors.Is(err, domain.ErrNoActiveToken), errors.Is(err, domain.ErrTokenInvalid):
		writeReason(w, http.StatusBadRequest, err.Error(), "invalid-token")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
