// Package notify delivers automated follow-up messages over the configured
// outbound channels. Channel clients may be absent; the dispatcher reports
// an unavailable channel instead of crashing.
package notify

import (
	"context"
	"fmt"

	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
)

// Dispatcher routes one outreach message to the channel's client.
type Dispatcher struct {
	whatsapp *WhatsAppClient
	email    *EmailSender
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher over the available channel clients.
// Either client may be nil.
func NewDispatcher(whatsapp *WhatsAppClient, email *EmailSender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{whatsapp: whatsapp, email: email, log: log}
}

// Send delivers message to the lead over channel.
func (d *Dispatcher) Send(ctx context.Context, lead *store.Lead, channel, message string) error {
	switch channel {
	case store.ChannelWhatsApp:
		if d.whatsapp == nil {
			return apperr.Internal("whatsapp channel not configured")
		}
		if lead.Phone == nil || *lead.Phone == "" {
			return apperr.Validation("lead has no phone number")
		}
		return d.whatsapp.SendMessage(ctx, *lead.Phone, message)

	case store.ChannelEmail:
		if d.email == nil {
			return apperr.Internal("email channel not configured")
		}
		if lead.Email == nil || *lead.Email == "" {
			return apperr.Validation("lead has no email address")
		}
		subject := fmt.Sprintf("Following up on your property enquiry, %s", lead.Name)
		return d.email.Send(ctx, *lead.Email, subject, message)

	case store.ChannelCall:
		// Calls are never sent automatically; the follow-up service
		// surfaces them to the agent instead.
		return apperr.Validation("call steps cannot be dispatched")

	default:
		return apperr.Validation(fmt.Sprintf("unknown channel %q", channel))
	}
}
