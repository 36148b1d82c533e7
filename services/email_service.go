package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"membership-erp/config"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type EmailMessage struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// EmailSender delivers a single message.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends mail over SMTP. Server settings saved through the
// settings API win over the environment.
type EmailService struct {
	settings *SettingsService
	fallback config.SMTPConfig
	sendMail sendMailFunc
}

func NewEmailService(settings *SettingsService, fallback config.SMTPConfig) *EmailService {
	return &EmailService{
		settings: settings,
		fallback: fallback,
		sendMail: smtp.SendMail,
	}
}

func (s *EmailService) resolve(ctx context.Context) (config.SMTPConfig, error) {
	if s.settings == nil {
		return s.fallback, nil
	}
	return s.settings.SMTPConfig(ctx, s.fallback)
}

func (s *EmailService) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return &ValidationError{Field: "to", Message: "at least one recipient is required"}
	}
	cfg, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	if cfg.Host == "" || cfg.Port == "" || cfg.User == "" || cfg.Password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}

	raw, err := buildMessage(from, msg, time.Now())
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	if err := s.sendMail(addr, auth, from, msg.To, raw); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// buildMessage renders an RFC 5322 message. Plain bodies are sent as-is;
// attachments switch to multipart/mixed with base64 parts.
func buildMessage(from string, msg EmailMessage, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		buf.WriteString("\r\n")
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {contentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64Lines wraps encoded output at 76 characters as MIME requires.
func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}
