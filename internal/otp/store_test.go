package otp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

// recordingSender captures dispatched messages for assertions.
type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	phone []string
}

func (r *recordingSender) Send(_ context.Context, phone, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phone = append(r.phone, phone)
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// failingSender always errors; delivery failures must not invalidate codes.
type failingSender struct{}

func (failingSender) Send(context.Context, string, string) error {
	return errors.New("provider down")
}

func newTestStore(sender *recordingSender) (*Store, *time.Time) {
	if sender == nil {
		sender = &recordingSender{}
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(sender, DefaultTTL)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestIssue_CodeShapeAndExpiry(t *testing.T) {
	s, now := newTestStore(nil)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	if !regexp.MustCompile(`^[1-9]\d{5}$`).MatchString(rec.Code) {
		t.Fatalf("code %q is not a 6-digit value in 100000-999999", rec.Code)
	}
	if got := rec.ExpiresAt; !got.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expiry %v, want %v", got, now.Add(5*time.Minute))
	}
	if rec.Verified {
		t.Fatal("fresh record must not be verified")
	}
}

func TestIssue_DispatchesSMS(t *testing.T) {
	sender := &recordingSender{}
	s, _ := newTestStore(sender)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	deadline := time.After(time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("sms never dispatched")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.phone[0] != "+15551234567" {
		t.Fatalf("sent to %q", sender.phone[0])
	}
	if want := otpMessage(rec.Code); sender.sent[0] != want {
		t.Fatalf("text %q, want %q", sender.sent[0], want)
	}
}

func TestVerify_CodeRemainsValidWhenDeliveryFails(t *testing.T) {
	s := NewStore(failingSender{}, DefaultTTL)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	got, err := s.Verify("r1", rec.Code)
	if err != nil {
		t.Fatalf("verify after failed delivery: %v", err)
	}
	if !got.Verified {
		t.Fatal("record should be verified")
	}
}

func TestVerify_Mismatch(t *testing.T) {
	s, _ := newTestStore(nil)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	wrong := "000000"
	if wrong == rec.Code {
		wrong = "000001"
	}
	if _, err := s.Verify("r1", wrong); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	// Record untouched: the correct code still works.
	if _, err := s.Verify("r1", rec.Code); err != nil {
		t.Fatalf("correct code after mismatch: %v", err)
	}
}

func TestVerify_NotFound(t *testing.T) {
	s, _ := newTestStore(nil)
	if _, err := s.Verify("ghost", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerify_ExpiredEvictsRecord(t *testing.T) {
	s, now := newTestStore(nil)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	*now = now.Add(5*time.Minute + time.Second)
	if _, err := s.Verify("r1", rec.Code); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Eviction is a side effect of detection.
	if _, ok := s.Get("r1"); ok {
		t.Fatal("expired record should be gone")
	}
	if _, err := s.Verify("r1", rec.Code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after eviction, got %v", err)
	}
}

func TestVerify_IdempotentOnceVerified(t *testing.T) {
	s, _ := newTestStore(nil)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	first, err := s.Verify("r1", rec.Code)
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}

	// Resubmission succeeds with any value and keeps VerifiedAt stable.
	again, err := s.Verify("r1", "999999")
	if err != nil {
		t.Fatalf("idempotent verify: %v", err)
	}
	if !again.Verified {
		t.Fatal("record should stay verified")
	}
	if !again.VerifiedAt.Equal(*first.VerifiedAt) {
		t.Fatalf("VerifiedAt changed: %v -> %v", first.VerifiedAt, again.VerifiedAt)
	}
}

func TestSweep_EvictsOnlyExpired(t *testing.T) {
	s, now := newTestStore(nil)
	s.Issue(context.Background(), "old", "+15550000001")

	*now = now.Add(3 * time.Minute)
	s.Issue(context.Background(), "fresh", "+15550000002")

	*now = now.Add(2*time.Minute + time.Second) // "old" past 5m, "fresh" at 2m
	if n := s.Sweep(*now); n != 1 {
		t.Fatalf("swept %d records, want 1", n)
	}
	if _, ok := s.Get("old"); ok {
		t.Fatal("old record should be swept")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Fatal("fresh record should survive")
	}
}

func TestIsVerified(t *testing.T) {
	s, _ := newTestStore(nil)
	rec := s.Issue(context.Background(), "r1", "+15551234567")

	if s.IsVerified("r1") {
		t.Fatal("unverified record reported verified")
	}
	if _, err := s.Verify("r1", rec.Code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !s.IsVerified("r1") {
		t.Fatal("verified record not reported")
	}
	if s.IsVerified("ghost") {
		t.Fatal("missing record reported verified")
	}
}
