// Package wa is the boundary to the external WhatsApp-protocol collaborator.
//
// The core never talks to a concrete protocol implementation. It consumes a
// Client that can start one Session per pairing request, and each Session
// exposes an ordered stream of Events. Everything protocol-specific (socket
// lifecycle, credential files, QR generation) stays behind these interfaces;
// this package only defines the contract plus small, protocol-adjacent
// helpers: the credential export envelope, QR data-URL rendering, and
// pairing-code formatting.
package wa

import "context"

// CloseReason is the protocol-level reason code carried by a
// ConnectionClosed event.
type CloseReason int

// ReasonLoggedOut is the close reason meaning the remote side revoked the
// linked device. Every other reason maps to a plain disconnect.
const ReasonLoggedOut CloseReason = 401

// Event is one item of the per-request event stream emitted by a Session.
// Events for a single request id are delivered in the order the external
// session produced them; no ordering holds across request ids.
type Event interface{ isEvent() }

// QRChallenge carries the raw QR payload issued by the protocol. The core
// renders it into a PNG data URL before exposing it to callers.
type QRChallenge struct {
	Code string
}

// PairingCode carries a numeric pairing code issued by the protocol, already
// normalized by the session (digits only, ungrouped).
type PairingCode struct {
	Code string
}

// ConnectionOpen signals protocol readiness: the device link handshake
// completed and the session is usable.
type ConnectionOpen struct{}

// ConnectionClosed signals the connection dropped. Reason distinguishes a
// logout from transient disconnects.
type ConnectionClosed struct {
	Reason CloseReason
}

// CredentialsUpdated carries the latest snapshot of named credential blobs.
// The core keeps only the most recent snapshot per request and serializes it
// into the export envelope on readiness.
type CredentialsUpdated struct {
	Creds map[string]string
}

func (QRChallenge) isEvent()        {}
func (PairingCode) isEvent()        {}
func (ConnectionOpen) isEvent()     {}
func (ConnectionClosed) isEvent()   {}
func (CredentialsUpdated) isEvent() {}

// Session is one live protocol session scoped to a single pairing request.
//
// Events returns the session's event stream. The channel is closed when the
// session stops producing events; callers range over it until closed.
//
// RequestPairingCode asks the protocol for a numeric pairing code as an
// alternative to QR scanning. Implementations that do not offer the
// capability return ErrPairingCodeUnsupported.
type Session interface {
	Events() <-chan Event
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	Close() error
}

// Client starts protocol sessions. One StartSession call per request id;
// the implementation owns reconnection policy (this design attempts none).
type Client interface {
	StartSession(ctx context.Context, requestID, phone string) (Session, error)
}
