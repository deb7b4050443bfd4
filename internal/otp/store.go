// Package otp implements the one-time-code store for pairing requests:
// issuing codes, dispatching them over the SMS capability, verifying
// submissions, and sweeping expired records.
//
// The store is an explicitly owned, injectable object (no package-level
// state) so tests construct isolated instances. All methods are safe for
// concurrent use.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
	"github.com/ADDICT-HUB/X-guru-pair/internal/sms"
)

// Verification failure modes, mapped to HTTP 404/410/403 at the handler
// layer.
var (
	// ErrNotFound means no OtpRecord exists for the request id (never
	// issued, or already swept).
	ErrNotFound = errors.New("otp record not found")

	// ErrExpired means the code's validity window elapsed. Detection evicts
	// the record, so a retry reports ErrNotFound.
	ErrExpired = errors.New("otp expired")

	// ErrMismatch means the submitted code differs from the issued one. The
	// record is untouched and resubmission stays possible until expiry.
	ErrMismatch = errors.New("invalid otp")
)

// DefaultTTL is the code validity window.
const DefaultTTL = 5 * time.Minute

// otpMessage renders the delivery text for an issued code.
func otpMessage(code string) string {
	return fmt.Sprintf("Your X-GURU pairing code is: %s", code)
}

// Store issues, verifies, and expires one-time codes keyed by request id.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.OtpRecord

	sender sms.Sender
	ttl    time.Duration

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewStore constructs a Store dispatching codes through sender. A ttl <= 0
// falls back to DefaultTTL.
func NewStore(sender sms.Sender, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		records: make(map[string]*domain.OtpRecord),
		sender:  sender,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue generates a uniformly random 6-digit code for requestID, stores it
// with a fresh expiry, and dispatches it to phone asynchronously. Delivery
// failure is logged, never fatal: the code stays valid regardless of the
// delivery outcome.
func (s *Store) Issue(ctx context.Context, requestID, phone string) domain.OtpRecord {
	now := s.now()
	rec := &domain.OtpRecord{
		Code:      generateCode(),
		Phone:     phone,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.records[requestID] = rec
	snapshot := *rec
	s.mu.Unlock()

	// Delivery must outlive the HTTP request that triggered it.
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.sender.Send(sendCtx, phone, otpMessage(snapshot.Code)); err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("otp delivery failed")
		}
	}()

	return snapshot
}

// Verify checks a submitted code against the stored record.
//
// Outcomes:
//   - ErrNotFound when no record exists,
//   - ErrExpired when past the validity window (record evicted),
//   - ErrMismatch when the code differs and the record is not yet verified,
//   - success (record snapshot) on a correct match, marking the record
//     verified exactly once,
//   - idempotent success when already verified, regardless of the submitted
//     value; VerifiedAt is not touched again.
func (s *Store) Verify(requestID, submitted string) (domain.OtpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[requestID]
	if !ok {
		return domain.OtpRecord{}, ErrNotFound
	}
	now := s.now()
	if now.After(rec.ExpiresAt) {
		delete(s.records, requestID)
		return domain.OtpRecord{}, ErrExpired
	}
	if rec.Verified {
		return *rec, nil
	}
	if submitted != rec.Code {
		return domain.OtpRecord{}, ErrMismatch
	}
	rec.Verified = true
	at := now
	rec.VerifiedAt = &at
	return *rec, nil
}

// Get returns a snapshot of the record for requestID, if present.
func (s *Store) Get(requestID string) (domain.OtpRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[requestID]
	if !ok {
		return domain.OtpRecord{}, false
	}
	return *rec, true
}

// IsVerified reports whether the record for requestID exists and was
// verified. Used by the reconciliation rule on protocol readiness.
func (s *Store) IsVerified(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[requestID]
	return ok && rec.Verified
}

// Sweep evicts every record whose expiry lies before now and returns the
// eviction count. Idempotent: overlapping sweeps compare against the same
// expiry instants.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// generateCode draws a uniformly random integer in [100000, 999999] and
// renders it as a 6-digit string.
func generateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand does not fail on supported platforms; a panic here
		// would only hide a broken environment.
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}
