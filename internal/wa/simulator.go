package wa

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Simulator is an in-process Client used when no real protocol collaborator
// is configured (dev and test environments). It emits a credential snapshot
// and a QR challenge immediately, offers a numeric pairing code on request,
// and reports readiness after ConnectDelay, standing in for the user
// approving the link on their phone.
//
// It mirrors the simulated-SMS fallback of the upstream service: the whole
// pairing flow stays exercisable end to end without external accounts.
type Simulator struct {
	// ConnectDelay is how long after session start the simulator reports
	// ConnectionOpen. Zero means readiness is emitted right after the
	// challenge.
	ConnectDelay time.Duration

	// QRDelay postpones the QR challenge, useful to exercise the pending
	// fallback of the respond-once contract.
	QRDelay time.Duration

	// DisablePairingCode makes RequestPairingCode report the capability as
	// unsupported, forcing the QR path.
	DisablePairingCode bool
}

// StartSession implements Client.
func (s *Simulator) StartSession(ctx context.Context, requestID, phone string) (Session, error) {
	sess := &simSession{
		events: make(chan Event, 8),
		done:   make(chan struct{}),
		sim:    s,
	}
	go sess.run(ctx, requestID)
	return sess, nil
}

type simSession struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	sim       *Simulator
}

func (s *simSession) Events() <-chan Event { return s.events }

func (s *simSession) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	if s.sim.DisablePairingCode {
		return "", ErrPairingCodeUnsupported
	}
	return randomToken(4), nil // 8 hex chars, grouped by the caller
}

func (s *simSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *simSession) run(ctx context.Context, requestID string) {
	defer close(s.events)

	s.emit(ctx, CredentialsUpdated{Creds: map[string]string{
		"creds.json": `{"simulated":true,"request":"` + requestID + `"}`,
	}})

	if !s.sleep(ctx, s.sim.QRDelay) {
		return
	}
	s.emit(ctx, QRChallenge{Code: "xguru-sim:" + requestID + ":" + randomToken(8)})

	if !s.sleep(ctx, s.sim.ConnectDelay) {
		return
	}
	s.emit(ctx, ConnectionOpen{})
}

// emit delivers ev unless the session was closed or the context ended.
func (s *simSession) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	case <-ctx.Done():
	}
}

// sleep waits d, returning false when the session ended first.
func (s *simSession) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// randomToken returns n random bytes hex-encoded (2n characters).
func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// fixed marker rather than panicking in a dev helper.
		return "0000000000000000"[:2*n]
	}
	return hex.EncodeToString(b)
}
