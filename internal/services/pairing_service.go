// Package services – PairingService
//
// This file implements the pairing orchestrator. StartPairing allocates a
// request id, issues the OTP, starts the external protocol session, and
// answers the initiating caller exactly once with the first of {QR challenge,
// pairing code, timeout}. Protocol events are pumped into the session
// registry; readiness persists the durable metadata record and runs the
// reconciliation rule, as does a successful OTP verification, so the link
// happens exactly once regardless of arrival order.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
	"github.com/ADDICT-HUB/X-guru-pair/internal/otp"
	"github.com/ADDICT-HUB/X-guru-pair/internal/registry"
	"github.com/ADDICT-HUB/X-guru-pair/internal/repo"
	"github.com/ADDICT-HUB/X-guru-pair/internal/sms"
	"github.com/ADDICT-HUB/X-guru-pair/internal/wa"
)

// DefaultRespondTimeout bounds how long the initiating HTTP request waits
// for a first challenge before falling back to a pending reply.
const DefaultRespondTimeout = 15 * time.Second

const (
	msgOTPSent    = "OTP sent to phone."
	msgPending    = "OTP sent. Waiting for QR/pairing code (poll /pair/{requestId})."
	msgOTPWaiting = "OTP verified. Waiting for WhatsApp connection to complete."
)

// PairingService coordinates the OTP store, the session registry, the
// durable metadata store, and the external protocol client. Construct with
// NewPairingService; all dependencies are injected.
type PairingService struct {
	DB       *gorm.DB
	Registry *registry.Registry
	OTP      *otp.Store
	SMS      sms.Sender
	Client   wa.Client

	// RespondTimeout overrides DefaultRespondTimeout when > 0.
	RespondTimeout time.Duration
}

// NewPairingService constructs a PairingService with the default respond
// timeout.
func NewPairingService(db *gorm.DB, reg *registry.Registry, store *otp.Store, sender sms.Sender, client wa.Client) *PairingService {
	return &PairingService{
		DB:       db,
		Registry: reg,
		OTP:      store,
		SMS:      sender,
		Client:   client,
	}
}

// StartResult is the synchronous outcome of StartPairing: exactly one of
// the mutually exclusive first-wins responses.
type StartResult struct {
	RequestID   string
	Status      domain.Status
	QR          string
	PairingCode string
	Pending     bool
	Message     string
}

// responder is the one-shot completion primitive behind the respond-once
// contract. The first resolve wins; later calls are no-ops and their signals
// are only observable through the registry.
type responder struct {
	once sync.Once
	ch   chan StartResult
}

func newResponder() *responder {
	return &responder{ch: make(chan StartResult, 1)}
}

func (r *responder) resolve(res StartResult) {
	r.once.Do(func() { r.ch <- res })
}

// StartPairing begins a device-linking attempt for phone and blocks until
// the first of {QR available, pairing code available, respond timeout}.
// Initiation is synchronous, completion asynchronous: whatever happens after
// the first response is observable via Status and the OTP entry point only.
//
// External-session failures after the request id exists are recorded as
// status failed on the registry record, never raised to the caller.
func (s *PairingService) StartPairing(ctx context.Context, phone string) StartResult {
	requestID := uuid.NewString()
	s.OTP.Issue(ctx, requestID, phone)
	s.Registry.Create(requestID, phone)
	pairingStarted.Inc()

	resp := newResponder()

	// The protocol session and its event pump outlive the HTTP request.
	sessCtx := context.WithoutCancel(ctx)
	sess, err := s.Client.StartSession(sessCtx, requestID, phone)
	if err != nil {
		detail := fmt.Sprintf("external session start: %v", err)
		s.Registry.SetFailed(requestID, detail)
		log.Error().Err(err).Str("request_id", requestID).Msg("session start failed")
		resp.resolve(StartResult{
			RequestID: requestID,
			Status:    domain.StatusFailed,
			Message:   msgOTPSent,
		})
	} else {
		go s.pumpEvents(sessCtx, requestID, sess, resp)
		go s.requestPairingCode(sessCtx, requestID, phone, sess, resp)
	}

	timeout := s.RespondTimeout
	if timeout <= 0 {
		timeout = DefaultRespondTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resp.ch:
		return res
	case <-timer.C:
	case <-ctx.Done():
	}
	return StartResult{
		RequestID: requestID,
		Status:    "pending",
		Pending:   true,
		Message:   msgPending,
	}
}

// pumpEvents forwards the session's ordered event stream into the registry
// and feeds the respond-once coordinator. It runs until the stream closes.
func (s *PairingService) pumpEvents(ctx context.Context, requestID string, sess wa.Session, resp *responder) {
	for ev := range sess.Events() {
		res, err := s.Registry.ApplyEvent(requestID, ev)
		if err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("event dropped")
			continue
		}

		switch ev.(type) {
		case wa.QRChallenge:
			if res.Request.QR != "" {
				resp.resolve(StartResult{
					RequestID: requestID,
					Status:    domain.StatusQR,
					QR:        res.Request.QR,
					Message:   msgOTPSent,
				})
			}
		case wa.PairingCode:
			if res.Request.PairingCode != "" {
				resp.resolve(StartResult{
					RequestID:   requestID,
					Status:      domain.StatusPairingCode,
					PairingCode: res.Request.PairingCode,
					Message:     msgOTPSent,
				})
			}
		case wa.ConnectionOpen:
			if res.BecameReady {
				s.finalizeReady(ctx, res.Request)
			}
		}
	}
}

// requestPairingCode asks the session for a numeric pairing code when the
// capability is offered. A granted code is equivalent to a QR challenge for
// response purposes; refusal or failure is non-fatal.
func (s *PairingService) requestPairingCode(ctx context.Context, requestID, phone string, sess wa.Session, resp *responder) {
	raw, err := sess.RequestPairingCode(ctx, wa.NormalizePhone(phone))
	if err != nil {
		if !errors.Is(err, wa.ErrPairingCodeUnsupported) {
			log.Warn().Err(err).Str("request_id", requestID).Msg("pairing code request failed")
		}
		return
	}

	res, err := s.Registry.ApplyEvent(requestID, wa.PairingCode{Code: raw})
	if err != nil || res.Request.PairingCode == "" {
		return
	}
	resp.resolve(StartResult{
		RequestID:   requestID,
		Status:      domain.StatusPairingCode,
		PairingCode: res.Request.PairingCode,
		Message:     msgOTPSent,
	})
}

// finalizeReady persists the write-once metadata record and evaluates the
// join rule from the readiness side.
func (s *PairingService) finalizeReady(ctx context.Context, req domain.PairingRequest) {
	meta := domain.SessionMeta{
		SessionID: req.SessionID,
		RequestID: req.RequestID,
		Phone:     req.Phone,
		CreatedAt: req.CreatedAt,
	}
	if req.ReadyAt != nil {
		meta.ReadyAt = *req.ReadyAt
	}
	if err := repo.InsertSessionMeta(ctx, s.DB, &meta); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("session meta write failed")
	}

	s.reconcile(ctx, req.RequestID)
}

// reconcile re-checks the two-source join for requestID and, when this call
// performs the linked transition, sends the best-effort completion SMS.
// Safe to invoke from both mutation sites: the registry guarantees the
// transition happens exactly once.
func (s *PairingService) reconcile(ctx context.Context, requestID string) {
	link, did := s.Registry.Reconcile(requestID, s.OTP.IsVerified(requestID))
	if !did {
		return
	}
	linksCompleted.Inc()
	log.Info().Str("request_id", requestID).Str("session_id", link.SessionID).Msg("pairing linked")

	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		text := fmt.Sprintf("Pairing complete. sessionId: %s", link.SessionID)
		if err := s.SMS.Send(notifyCtx, link.Phone, text); err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("link notification failed")
		}
	}()
}

// VerifyResult is the outcome of a successful OTP verification. SessionID
// and Export are populated only when the request already reached readiness.
type VerifyResult struct {
	RequestID string
	Verified  bool
	SessionID string
	Export    string
	Message   string
}

// VerifyOTP validates a submitted code and, on success, evaluates the join
// rule from the verification side. Failures map to the service error
// taxonomy (ErrRequestNotFound, ErrOTPExpired, ErrOTPMismatch).
func (s *PairingService) VerifyOTP(ctx context.Context, requestID, code string) (VerifyResult, error) {
	_, err := s.OTP.Verify(requestID, code)
	switch {
	case errors.Is(err, otp.ErrNotFound):
		otpVerifications.WithLabelValues("not_found").Inc()
		return VerifyResult{}, ErrRequestNotFound
	case errors.Is(err, otp.ErrExpired):
		otpVerifications.WithLabelValues("expired").Inc()
		return VerifyResult{}, ErrOTPExpired
	case errors.Is(err, otp.ErrMismatch):
		otpVerifications.WithLabelValues("mismatch").Inc()
		return VerifyResult{}, ErrOTPMismatch
	case err != nil:
		return VerifyResult{}, err
	}
	otpVerifications.WithLabelValues("verified").Inc()

	s.reconcile(ctx, requestID)

	res := VerifyResult{RequestID: requestID, Verified: true}
	if req, ok := s.Registry.Get(requestID); ok && req.SessionID != "" {
		res.SessionID = req.SessionID
		res.Export = req.Export
	} else {
		res.Message = msgOTPWaiting
	}
	return res, nil
}

// StatusSnapshot is the full pollable view of one request id, merging the
// live pairing record with the OTP record. It mirrors the wire shape of the
// status endpoint.
type StatusSnapshot struct {
	RequestID   string        `json:"requestId"`
	Status      domain.Status `json:"status"`
	Phone       string        `json:"phone,omitempty"`
	QR          string        `json:"qr,omitempty"`
	PairingCode string        `json:"pairing_code,omitempty"`
	OTPVerified bool          `json:"otp_verified"`
	SessionID   string        `json:"sessionId,omitempty"`
	Export      string        `json:"export,omitempty"`
	Linked      bool          `json:"linked"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Status returns the current snapshot for requestID. When only an OtpRecord
// exists (the protocol session never started), the status is unknown; when
// neither record exists, ErrRequestNotFound.
func (s *PairingService) Status(_ context.Context, requestID string) (StatusSnapshot, error) {
	req, haveReq := s.Registry.Get(requestID)
	rec, haveOTP := s.OTP.Get(requestID)
	if !haveReq && !haveOTP {
		return StatusSnapshot{}, ErrRequestNotFound
	}

	snap := StatusSnapshot{
		RequestID:   requestID,
		Status:      domain.StatusUnknown,
		OTPVerified: haveOTP && rec.Verified,
	}
	if haveReq {
		snap.Status = req.Status
		snap.Phone = req.Phone
		snap.QR = req.QR
		snap.PairingCode = req.PairingCode
		snap.SessionID = req.SessionID
		snap.Export = req.Export
		snap.Linked = req.Linked
		snap.Error = req.Error
		snap.CreatedAt = req.CreatedAt
	} else {
		snap.Phone = rec.Phone
		snap.CreatedAt = rec.CreatedAt
	}
	return snap, nil
}

// Sessions returns a page of durable session metadata (every request that
// ever reached ready) plus the total count. Defaults are applied for
// invalid page/pageSize.
func (s *PairingService) Sessions(ctx context.Context, page, pageSize int) ([]domain.SessionMeta, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSessionMeta(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.SessionMeta{}, 0, nil
	}

	items, err := repo.ListSessionMetaPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Watch exposes the registry's per-request subscription for the status
// stream endpoint.
func (s *PairingService) Watch(requestID string) (<-chan domain.PairingRequest, func(), bool) {
	return s.Registry.Subscribe(requestID)
}
