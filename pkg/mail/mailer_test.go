package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from    string
	rcpts   []string
	body    bytes.Buffer
	quitted bool
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSMTPClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeSMTPClient) Rcpt(rcpt string) error { f.rcpts = append(f.rcpts, rcpt); return nil }
func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.body}, nil
}
func (f *fakeSMTPClient) Quit() error                    { f.quitted = true; return nil }
func (f *fakeSMTPClient) Close() error                   { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error     { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error           { return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

func TestSendDisabled(t *testing.T) {
	mailer := &smtpMailer{cfg: SMTPSettings{Enabled: false}}
	err := mailer.Send(context.Background(), Message{To: []string{"user@example.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendDeliversMessage(t *testing.T) {
	fake := &fakeSMTPClient{}
	client, server := net.Pipe()
	_ = server.Close()

	mailer := &smtpMailer{
		cfg: SMTPSettings{
			Enabled: true,
			Host:    "smtp.example.com",
			Port:    587,
			From:    "accounts@example.com",
			Timeout: time.Second,
		},
		dialFn: func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
			return client, fake, nil
		},
		authFn: func(smtpClient, SMTPSettings) error { return nil },
	}

	err := mailer.Send(context.Background(), Message{
		To:      []string{"user@example.com", "user@example.com"},
		Subject: "Confirm your account",
		Body:    "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "accounts@example.com", fake.from)
	require.Equal(t, []string{"user@example.com"}, fake.rcpts)
	require.Contains(t, fake.body.String(), "Subject: Confirm your account")
	require.True(t, fake.quitted)
}

func TestSendRejectsInvalidAddresses(t *testing.T) {
	mailer := &smtpMailer{cfg: SMTPSettings{Enabled: true, From: "not-an-address"}}
	err := mailer.Send(context.Background(), Message{To: []string{"user@example.com"}})
	require.Error(t, err)
}

func TestValidateSMTPConfig(t *testing.T) {
	require.NoError(t, validateSMTPConfig(SMTPSettings{Enabled: false}))
	require.Error(t, validateSMTPConfig(SMTPSettings{Enabled: true}))
	require.Error(t, validateSMTPConfig(SMTPSettings{Enabled: true, Host: "smtp.example.com"}))
	require.NoError(t, validateSMTPConfig(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587}))
}
