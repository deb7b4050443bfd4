// Package domain defines the core data model of the pairing backend: the
// in-memory PairingRequest tracked by the session registry, the OtpRecord
// owned by the OTP store, and the durable SessionMeta row written once a
// request reaches readiness. SessionMeta is the only persisted type and is
// mapped with GORM.
package domain

import (
	"time"
)

// Status is the lifecycle state of a pairing request. Transitions are
// forward-only, except that a ready request may later become logged_out or
// disconnected when the external connection drops.
type Status string

const (
	// StatusInitializing is the state of a freshly created request, before
	// the external session has produced any challenge.
	StatusInitializing Status = "initializing"

	// StatusQR means the external session issued a QR challenge.
	StatusQR Status = "qr"

	// StatusPairingCode means a numeric pairing code was issued.
	StatusPairingCode Status = "pairing_code"

	// StatusReady means the external session connected successfully. A
	// request reaches ready at most once per connection.
	StatusReady Status = "ready"

	// StatusLoggedOut is terminal: the remote side revoked the device.
	StatusLoggedOut Status = "logged_out"

	// StatusDisconnected means the connection closed for any reason other
	// than a logout.
	StatusDisconnected Status = "disconnected"

	// StatusFailed records an external-session error detected after the
	// request id was already handed to the caller.
	StatusFailed Status = "failed"

	// StatusUnknown is reported by the status endpoint when only an
	// OtpRecord exists for a request id (the protocol session never
	// started or the process restarted).
	StatusUnknown Status = "unknown"
)

// PairingRequest is the live, in-memory record of one device-linking attempt.
// It is owned by the session registry; all mutation goes through registry
// methods so that concurrent event delivery and OTP verification stay
// serialized per request id.
//
// Linked is monotonic: once true it is never reset, even if the external
// connection later drops.
type PairingRequest struct {
	RequestID   string     `json:"requestId"`
	Phone       string     `json:"phone"`
	Status      Status     `json:"status"`
	QR          string     `json:"qr,omitempty"`           // PNG data URL of the QR challenge
	PairingCode string     `json:"pairing_code,omitempty"` // dash-grouped numeric pairing code
	SessionID   string     `json:"sessionId,omitempty"`    // set on readiness, immutable afterwards
	Linked      bool       `json:"linked"`
	Export      string     `json:"export,omitempty"` // Mercedes~<base64> credential envelope
	Error       string     `json:"error,omitempty"`  // last fatal external-session error
	CreatedAt   time.Time  `json:"created_at"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	LinkedAt    *time.Time `json:"linked_at,omitempty"`
}

// OtpRecord is the one-time code issued for a pairing request. It lives in
// the OTP store until it expires (swept) or the process exits.
//
// Verified is set exactly once on a correct, in-time match; after that,
// re-verification is idempotent and ignores the submitted code.
type OtpRecord struct {
	Code       string     `json:"-"` // never serialized
	Phone      string     `json:"phone"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SessionMeta is the durable metadata record written exactly once when a
// request first reaches readiness. The /sessions listing reads these rows,
// never the live registry, so linked sessions survive process restarts.
//
// Rows are write-once: nothing updates or deletes them after insertion.
type SessionMeta struct {
	SessionID string    `json:"sessionId"  gorm:"type:char(36);primaryKey"`
	RequestID string    `json:"requestId"  gorm:"type:char(36);not null;uniqueIndex"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	ReadyAt   time.Time `json:"ready_at"`
}

// TableName returns the database table name for SessionMeta.
func (SessionMeta) TableName() string { return "session_meta" }
