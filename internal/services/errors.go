// Package services implements the pairing orchestration: starting linking
// attempts, the respond-once contract for the initiating request, OTP
// verification, and the reconciliation of verification with protocol
// readiness. This file centralizes service-level error values so handlers
// can translate them into HTTP results consistently.
package services

import "errors"

var (
	// ErrRequestNotFound indicates the request id matches neither a live
	// pairing request nor an OTP record.
	ErrRequestNotFound = errors.New("pairing request not found")

	// ErrOTPExpired is returned when the submitted code's validity window
	// elapsed; detection evicts the underlying record.
	ErrOTPExpired = errors.New("otp expired")

	// ErrOTPMismatch is returned for a wrong code. The record is untouched
	// and resubmission stays possible until expiry.
	ErrOTPMismatch = errors.New("invalid otp")
)
