// Package registry implements the in-memory table of in-flight pairing
// attempts. It applies external-protocol events to per-request records,
// evaluates the two-source join between OTP verification and protocol
// readiness, and fans out state changes to subscribers (the WebSocket status
// stream).
//
// The registry is an injectable object constructed at process start; there
// are no package-level singletons. All state is guarded by a single mutex:
// event volume is one short burst per pairing attempt, so finer-grained
// locking buys nothing here.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
	"github.com/ADDICT-HUB/X-guru-pair/internal/wa"
)

// ErrUnknownRequest is returned when an event or reconciliation targets a
// request id the registry has never seen.
var ErrUnknownRequest = errors.New("unknown pairing request")

// subBuffer is the per-subscriber channel capacity; slow consumers drop
// intermediate snapshots rather than stalling event delivery.
const subBuffer = 8

// entry is the mutable state behind one PairingRequest, including data that
// never leaves the registry: the latest credential snapshot and the
// subscriber set.
type entry struct {
	req   domain.PairingRequest
	creds map[string]string
	subs  map[chan domain.PairingRequest]struct{}
}

// Registry is the process-wide table of pairing attempts keyed by request
// id. Records live until process restart; only OtpRecords expire (see the
// otp package). Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	// now is the clock, overridable in tests.
	now func() time.Time

	// newSessionID mints protocol session ids on readiness.
	newSessionID func() string
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		entries:      make(map[string]*entry),
		now:          time.Now,
		newSessionID: uuid.NewString,
	}
}

// Create registers a new pairing attempt in status initializing and returns
// its snapshot.
func (r *Registry) Create(requestID, phone string) domain.PairingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		req: domain.PairingRequest{
			RequestID: requestID,
			Phone:     phone,
			Status:    domain.StatusInitializing,
			CreatedAt: r.now(),
		},
		subs: make(map[chan domain.PairingRequest]struct{}),
	}
	r.entries[requestID] = e
	return e.req
}

// Get returns a snapshot of the request, if present.
func (r *Registry) Get(requestID string) (domain.PairingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[requestID]
	if !ok {
		return domain.PairingRequest{}, false
	}
	return e.req, true
}

// ApplyResult reports the state after an event was applied and whether this
// event carried the request into ready (true at most once per request).
type ApplyResult struct {
	Request     domain.PairingRequest
	BecameReady bool
}

// ApplyEvent applies one external-protocol event to the stored record.
//
// Events for one request id arrive in emission order (the orchestrator pumps
// a single channel per session); events for different ids may interleave
// freely. Challenge events are ignored once the request reached ready;
// disconnect events are honored even after ready, per the state machine.
func (r *Registry) ApplyEvent(requestID string, ev wa.Event) (ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[requestID]
	if !ok {
		return ApplyResult{}, ErrUnknownRequest
	}

	res := ApplyResult{}
	switch ev := ev.(type) {
	case wa.QRChallenge:
		if e.req.SessionID != "" {
			break // already ready; late challenges carry no information
		}
		dataURL, err := wa.QRDataURL(ev.Code)
		if err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("qr render failed")
			break
		}
		e.req.QR = dataURL
		e.req.Status = domain.StatusQR

	case wa.PairingCode:
		if e.req.SessionID != "" {
			break
		}
		e.req.PairingCode = wa.FormatPairingCode(ev.Code)
		if e.req.Status == domain.StatusInitializing {
			e.req.Status = domain.StatusPairingCode
		}

	case wa.ConnectionOpen:
		if e.req.SessionID != "" {
			break // ready is reached once per connection
		}
		now := r.now()
		e.req.Status = domain.StatusReady
		e.req.SessionID = r.newSessionID()
		e.req.ReadyAt = &now
		if len(e.creds) > 0 {
			export, err := wa.ExportCredentials(e.creds)
			if err != nil {
				log.Error().Err(err).Str("request_id", requestID).Msg("credential export failed")
			} else {
				e.req.Export = export
			}
		}
		res.BecameReady = true

	case wa.ConnectionClosed:
		if ev.Reason == wa.ReasonLoggedOut {
			e.req.Status = domain.StatusLoggedOut
		} else {
			e.req.Status = domain.StatusDisconnected
		}

	case wa.CredentialsUpdated:
		if e.creds == nil {
			e.creds = make(map[string]string, len(ev.Creds))
		}
		for k, v := range ev.Creds {
			e.creds[k] = v
		}
	}

	res.Request = e.req
	r.publishLocked(e)
	return res, nil
}

// SetFailed records an external-session error on the request. Used when the
// protocol session cannot start or crashes after the request id was already
// returned to the caller.
func (r *Registry) SetFailed(requestID, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[requestID]
	if !ok {
		return
	}
	e.req.Status = domain.StatusFailed
	e.req.Error = detail
	r.publishLocked(e)
}

// LinkResult carries what the orchestrator needs to notify the caller after
// a successful link.
type LinkResult struct {
	SessionID string
	Phone     string
	Export    string
}

// shouldLink is the pure join rule: a request links when the OTP was
// verified, the protocol assigned a session id, and the link did not already
// happen. Status is deliberately not consulted: a verified OTP still links a
// request that went ready and later disconnected.
func shouldLink(req domain.PairingRequest, otpVerified bool) bool {
	return otpVerified && !req.Linked && req.SessionID != ""
}

// Reconcile evaluates the join rule for requestID and, when it holds,
// performs the linked transition under the registry lock. The boolean result
// reports whether THIS call performed the transition, which makes the
// post-link notification exactly-once no matter which of {OTP verified,
// protocol ready} arrived second or how the two callers interleave.
func (r *Registry) Reconcile(requestID string, otpVerified bool) (LinkResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[requestID]
	if !ok || !shouldLink(e.req, otpVerified) {
		return LinkResult{}, false
	}
	now := r.now()
	e.req.Linked = true
	e.req.LinkedAt = &now
	r.publishLocked(e)
	return LinkResult{
		SessionID: e.req.SessionID,
		Phone:     e.req.Phone,
		Export:    e.req.Export,
	}, true
}

// Subscribe registers a watcher for requestID. It returns a channel that
// receives a snapshot after every state change (intermediate snapshots may
// be dropped for slow consumers) and a cancel function that must be called
// when done. ok is false for unknown request ids.
func (r *Registry) Subscribe(requestID string) (<-chan domain.PairingRequest, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[requestID]
	if !ok {
		return nil, nil, false
	}
	ch := make(chan domain.PairingRequest, subBuffer)
	e.subs[ch] = struct{}{}

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, still := e.subs[ch]; still {
			delete(e.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, true
}

// publishLocked fans the current snapshot out to subscribers without
// blocking; callers hold r.mu.
func (r *Registry) publishLocked(e *entry) {
	for ch := range e.subs {
		select {
		case ch <- e.req:
		default:
		}
	}
}
