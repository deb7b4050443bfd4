// Pairing HTTP handlers.
//
// This file exposes the REST endpoints for the device-linking flow:
//   - POST /pair                          (start a pairing attempt)
//   - POST /pair/{requestId}/verify-otp   (submit the one-time code)
//   - GET  /pair/{requestId}              (poll the live snapshot)
//
// Handlers in this file are transport-thin: they validate input, delegate to
// the pairing service, and translate service errors into HTTP results. The
// start endpoint blocks until the service's respond-once contract resolves
// (first challenge or timeout); everything later is observable only through
// polling or the event stream.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
	"github.com/ADDICT-HUB/X-guru-pair/internal/services"
)

// PairingAPI defines the pairing operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PairingAPI interface {
	// StartPairing begins a linking attempt and blocks until the first
	// challenge or the respond timeout.
	StartPairing(ctx context.Context, phone string) services.StartResult
	// VerifyOTP validates a submitted one-time code.
	VerifyOTP(ctx context.Context, requestID, code string) (services.VerifyResult, error)
	// Status returns the merged live snapshot for a request id.
	Status(ctx context.Context, requestID string) (services.StatusSnapshot, error)
	// Sessions returns a page of durable session metadata and the total count.
	Sessions(ctx context.Context, page, pageSize int) ([]domain.SessionMeta, int64, error)
	// Watch subscribes to live snapshots for a request id.
	Watch(requestID string) (<-chan domain.PairingRequest, func(), bool)
}

// Handlers groups the HTTP endpoints for pairing, sessions, and the status
// stream. It depends on an abstract service interface to keep transport
// concerns separate from orchestration logic.
type Handlers struct {
	svc PairingAPI
}

// New constructs and returns a Handlers instance bound to the given service.
func New(svc PairingAPI) *Handlers {
	return &Handlers{svc: svc}
}

// StartPairingRequest is the JSON payload for starting a pairing attempt.
type StartPairingRequest struct {
	// Phone is the target device number in E.164 form.
	Phone string `json:"phone" binding:"required" example:"+15551234567"`
}

// StartPairingResponse is the synchronous reply of the start endpoint.
// Exactly one of QR or PairingCode is set, or neither when pending.
type StartPairingResponse struct {
	RequestID   string        `json:"requestId" example:"fa4dfbe0-c3bf-47bd-b32f-d7de221cf43b"`
	Status      domain.Status `json:"status" example:"qr"`
	QR          string        `json:"qr,omitempty" example:"data:image/png;base64,iVBOR..."`
	PairingCode string        `json:"pairing_code,omitempty" example:"ABCD-1234"`
	Message     string        `json:"message" example:"OTP sent to phone."`
}

// StartPairing godoc
// @ID          startPairing
// @Summary     Start a device-linking attempt
// @Description Issues an OTP to the phone, starts the external protocol session, and replies with the first of QR challenge, pairing code, or a pending note after the respond timeout.
// @Tags        Pairing
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.StartPairingRequest  true  "Pairing payload"
//
// @Success     201  {object} handlers.StartPairingResponse "QR challenge available"
// @Success     200  {object} handlers.StartPairingResponse "Pairing code available (or session failed to start)"
// @Success     202  {object} handlers.StartPairingResponse "No challenge yet; poll the status endpoint"
// @Failure     400  {object} handlers.ErrorResponse "Missing phone"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Router      /pair [post]
func (h *Handlers) StartPairing(c *gin.Context) {
	var req StartPairingRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Phone) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone required")
		return
	}

	res := h.svc.StartPairing(c.Request.Context(), strings.TrimSpace(req.Phone))

	body := StartPairingResponse{
		RequestID:   res.RequestID,
		Status:      res.Status,
		QR:          res.QR,
		PairingCode: res.PairingCode,
		Message:     res.Message,
	}
	switch {
	case res.Pending:
		ok(c, http.StatusAccepted, body)
	case res.Status == domain.StatusQR:
		ok(c, http.StatusCreated, body)
	default:
		// Pairing code, or a start failure recorded on the request.
		ok(c, http.StatusOK, body)
	}
}

// VerifyOTPRequest is the JSON payload for submitting a one-time code.
type VerifyOTPRequest struct {
	// OTP is the 6-digit code delivered over SMS.
	OTP string `json:"otp" binding:"required" example:"123456"`
}

// VerifyOTPResponse confirms a verified code. SessionID and Export are
// present only when the protocol side already reached readiness.
type VerifyOTPResponse struct {
	RequestID string `json:"requestId" example:"fa4dfbe0-c3bf-47bd-b32f-d7de221cf43b"`
	Verified  bool   `json:"verified" example:"true"`
	SessionID string `json:"sessionId,omitempty" example:"7c16cc30-5d8a-4f72-9c1c-0a0d7b4a3f11"`
	Export    string `json:"export,omitempty"`
	Message   string `json:"message,omitempty" example:"OTP verified. Waiting for WhatsApp connection to complete."`
}

// VerifyOTP godoc
// @ID          verifyOTP
// @Summary     Submit the one-time code for a pairing attempt
// @Description Validates the OTP. A correct code on a request that already reached readiness returns the session id and credential export; otherwise the caller keeps polling.
// @Tags        Pairing
// @Accept      json
// @Produce     json
//
// @Param       requestId  path  string                     true  "Pairing request ID (UUID)" format(uuid)
// @Param       body       body  handlers.VerifyOTPRequest  true  "OTP payload"
//
// @Success     200  {object} handlers.VerifyOTPResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing code"
// @Failure     403  {object} handlers.ErrorResponse "Wrong code"
// @Failure     404  {object} handlers.ErrorResponse "Unknown request"
// @Failure     410  {object} handlers.ErrorResponse "Code expired (record evicted)"
// @Router      /pair/{requestId}/verify-otp [post]
func (h *Handlers) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.OTP) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "otp required")
		return
	}
	requestID := c.Param("requestId")

	res, err := h.svc.VerifyOTP(c.Request.Context(), requestID, strings.TrimSpace(req.OTP))
	if err != nil {
		switch err {
		case services.ErrRequestNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "pairing request not found")
		case services.ErrOTPExpired:
			fail(c, http.StatusGone, ErrCodeOTPExpired, "OTP expired")
		case services.ErrOTPMismatch:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "wrong OTP")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, VerifyOTPResponse{
		RequestID: res.RequestID,
		Verified:  res.Verified,
		SessionID: res.SessionID,
		Export:    res.Export,
		Message:   res.Message,
	})
}

// GetStatus godoc
// @ID          getPairingStatus
// @Summary     Poll the live snapshot of a pairing attempt
// @Description Returns the merged view of the pairing record and the OTP record. A request whose protocol session never started reports status "unknown".
// @Tags        Pairing
// @Produce     json
//
// @Param       requestId  path  string  true  "Pairing request ID (UUID)" format(uuid)
//
// @Success     200  {object} services.StatusSnapshot
// @Failure     404  {object} handlers.ErrorResponse "Unknown request"
// @Router      /pair/{requestId} [get]
func (h *Handlers) GetStatus(c *gin.Context) {
	snap, err := h.svc.Status(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		if err == services.ErrRequestNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "pairing request not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, snap)
}
