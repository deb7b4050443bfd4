// Package sms abstracts the out-of-band text-message capability used for OTP
// delivery and link notifications. Delivery is best effort everywhere it is
// invoked: callers log failures and continue, they never fail the pairing
// flow on an undelivered message.
package sms

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Sender dispatches a single text message to an E.164 phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// Simulated is the dev fallback Sender: it logs the message instead of
// delivering it, so the flow works without provider credentials.
type Simulated struct{}

// Send implements Sender by logging the would-be message.
func (Simulated) Send(_ context.Context, phone, text string) error {
	log.Info().Str("phone", phone).Str("text", text).Msg("simulated sms")
	return nil
}
