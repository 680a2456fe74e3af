package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kurbanlink/api/internal/application/verification"
	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/kurbanlink/api/internal/pkg/validate"
)

// VerificationHandler handles the email OTP flow.
type VerificationHandler struct {
	svc verification.Service
	clk clock.Clock
}

func NewVerificationHandler(svc verification.Service, clk clock.Clock) *VerificationHandler {
	return &VerificationHandler{svc: svc, clk: clk}
}

type otpRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose"`
}

type otpVerifyRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose"`
	Code    string `json:"otp" validate:"required,len=6,numeric"`
}

func (r *otpRequest) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Purpose == "" {
		r.Purpose = domain.PurposeRegisterEmailVerify
	}
}

func (h *VerificationHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.RequestOTP(r.Context(), req.Email, req.Purpose)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OTPEnvelope{
		Status:           "OTP_SENT",
		ExpiresInSeconds: int(res.ExpiresAt.Sub(h.clk.Now()) / time.Second),
	})
}

func (h *VerificationHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Purpose == "" {
		req.Purpose = domain.PurposeRegisterEmailVerify
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), req.Email, req.Purpose, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifiedEnvelope{
		Status:            "VERIFIED",
		VerificationToken: res.Token,
		ExpiresInSeconds:  int(res.TokenExpiresAt.Sub(h.clk.Now()) / time.Second),
	})
}
