package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-erp/config"
	"membership-erp/testsupport"
)

func TestSettingsService(t *testing.T) {
	ctx := context.Background()
	settings := NewSettingsService(NewStore(testsupport.NewDB(t), 1))

	require.NoError(t, settings.Update(ctx, map[string]string{
		SettingSMTPHost:     " smtp.example.com ",
		SettingSMTPPassword: "hunter2",
	}))
	require.NoError(t, settings.Update(ctx, map[string]string{SettingSMTPHost: "mail.example.com"}))

	host, err := settings.Get(ctx, SettingSMTPHost)
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com", host)

	missing, err := settings.Get(ctx, SettingSMTPFrom)
	require.NoError(t, err)
	assert.Empty(t, missing)

	all, err := settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		SettingSMTPHost:     "mail.example.com",
		SettingSMTPPassword: "********",
	}, all)

	err = settings.Update(ctx, map[string]string{"smtp_hots": "typo"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "smtp_hots", verr.Field)

	cfg, err := settings.SMTPConfig(ctx, config.SMTPConfig{Host: "env", Port: "587", User: "env-user", Password: "env-pass"})
	require.NoError(t, err)
	assert.Equal(t, config.SMTPConfig{
		Host:     "mail.example.com",
		Port:     "587",
		User:     "env-user",
		Password: "hunter2",
	}, cfg)
}
