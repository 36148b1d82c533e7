package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"membership-erp/config"
)

type fakeTwilio struct {
	sent []*twilioApi.CreateMessageParams
	err  error
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.sent = append(f.sent, params)
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestNewSMSService_DisabledWithoutCredentials(t *testing.T) {
	svc := NewSMSService(config.TwilioConfig{PhoneNumber: "+15550000000"})
	assert.Nil(t, svc)

	channel, err := svc.SendText(context.Background(), "+919876543210", "hi", false)
	assert.ErrorIs(t, err, ErrSMSDisabled)
	assert.Equal(t, ChannelSMS, channel)
}

func TestSMSService_SendText(t *testing.T) {
	ctx := context.Background()

	t.Run("sms", func(t *testing.T) {
		api := &fakeTwilio{}
		svc := &SMSService{api: api, from: "+15550000000", whatsAppFrom: "+15551111111"}

		channel, err := svc.SendText(ctx, "+919876543210", "Your code is 123456", false)
		require.NoError(t, err)
		assert.Equal(t, ChannelSMS, channel)
		require.Len(t, api.sent, 1)
		assert.Equal(t, "+919876543210", *api.sent[0].To)
		assert.Equal(t, "+15550000000", *api.sent[0].From)
		assert.Equal(t, "Your code is 123456", *api.sent[0].Body)
	})

	t.Run("whatsapp", func(t *testing.T) {
		api := &fakeTwilio{}
		svc := &SMSService{api: api, from: "+15550000000", whatsAppFrom: "+15551111111"}

		channel, err := svc.SendText(ctx, "+919876543210", "Plan expiring", true)
		require.NoError(t, err)
		assert.Equal(t, ChannelWhatsApp, channel)
		assert.Equal(t, "whatsapp:+919876543210", *api.sent[0].To)
		assert.Equal(t, "whatsapp:+15551111111", *api.sent[0].From)
	})

	t.Run("whatsapp falls back to sms without a sender", func(t *testing.T) {
		api := &fakeTwilio{}
		svc := &SMSService{api: api, from: "+15550000000"}

		channel, err := svc.SendText(ctx, "+919876543210", "Plan expiring", true)
		require.NoError(t, err)
		assert.Equal(t, ChannelSMS, channel)
		assert.Equal(t, "+919876543210", *api.sent[0].To)
	})

	t.Run("api error", func(t *testing.T) {
		boom := errors.New("21211 invalid 'To' number")
		svc := &SMSService{api: &fakeTwilio{err: boom}, from: "+15550000000"}

		_, err := svc.SendText(ctx, "12345", "hi", false)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled context", func(t *testing.T) {
		api := &fakeTwilio{}
		svc := &SMSService{api: api, from: "+15550000000"}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := svc.SendText(cancelled, "+919876543210", "hi", false)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, api.sent)
	})
}
