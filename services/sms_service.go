package services

import (
	"context"
	"errors"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"membership-erp/config"
)

const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

var ErrSMSDisabled = errors.New("twilio is not configured")

// TextSender delivers a short text message and reports the channel used.
type TextSender interface {
	SendText(ctx context.Context, to, body string, preferWhatsApp bool) (string, error)
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSService sends SMS and WhatsApp messages through Twilio.
type SMSService struct {
	api          messageCreator
	from         string
	whatsAppFrom string
}

// NewSMSService returns nil when Twilio credentials are missing.
func NewSMSService(cfg config.TwilioConfig) *SMSService {
	if !cfg.Enabled() {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSService{
		api:          client.Api,
		from:         cfg.PhoneNumber,
		whatsAppFrom: cfg.WhatsAppNumber,
	}
}

// SendText uses WhatsApp when asked, a WhatsApp sender is configured and the
// number is in E.164 form. Everything else goes out as SMS.
func (s *SMSService) SendText(ctx context.Context, to, body string, preferWhatsApp bool) (string, error) {
	if s == nil {
		return ChannelSMS, ErrSMSDisabled
	}
	if err := ctx.Err(); err != nil {
		return ChannelSMS, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetBody(body)

	channel := ChannelSMS
	if preferWhatsApp && s.whatsAppFrom != "" && strings.HasPrefix(to, "+") {
		channel = ChannelWhatsApp
		params.SetTo("whatsapp:" + to)
		params.SetFrom("whatsapp:" + s.whatsAppFrom)
	} else {
		params.SetTo(to)
		params.SetFrom(s.from)
	}

	if _, err := s.api.CreateMessage(params); err != nil {
		return channel, err
	}
	return channel, nil
}
