package sms

import (
	"context"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio sends messages through the Twilio Programmable Messaging API.
type Twilio struct {
	client *twilio.RestClient
	from   string
}

// NewTwilio builds a Twilio sender from account credentials and the sending
// number. Callers decide whether credentials are present; see config.
func NewTwilio(accountSID, authToken, from string) *Twilio {
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}
}

// Send implements Sender.
func (t *Twilio) Send(_ context.Context, phone, text string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(t.from)
	params.SetBody(text)
	_, err := t.client.Api.CreateMessage(params)
	return err
}
