// Package mailer sends transactional account email.
package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/config"
)

// Mailer delivers account lifecycle email.
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, email, invitationToken string) error
	SendPasswordResetEmail(ctx context.Context, email, resetToken string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg config.MailerConfig
}

// NewSMTPMailer creates a mailer backed by the configured SMTP relay
func NewSMTPMailer(cfg config.MailerConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendWelcomeEmail mails the account setup link for a fresh signup
func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, email, invitationToken string) error {
	link := setupURL(m.cfg.ExternalOrigin, invitationToken)
	body := fmt.Sprintf("Welcome! Finish setting up your account:\r\n\r\n%s\r\n", link)
	return m.send(email, "Welcome to Hangar", body)
}

// SendPasswordResetEmail mails the password reset link
func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, email, resetToken string) error {
	link := resetURL(m.cfg.ExternalOrigin, resetToken)
	body := fmt.Sprintf("A password reset was requested for this address:\r\n\r\n%s\r\n\r\nIgnore this mail if that wasn't you.\r\n", link)
	return m.send(email, "Reset your password", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := net.JoinHostPort(m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer logs mail instead of sending it. Used in development and tests.
type LogMailer struct {
	logger *logrus.Logger
	origin string
}

// NewLogMailer creates a mailer that writes deliveries to the log
func NewLogMailer(logger *logrus.Logger, externalOrigin string) *LogMailer {
	return &LogMailer{logger: logger, origin: externalOrigin}
}

func (m *LogMailer) SendWelcomeEmail(ctx context.Context, email, invitationToken string) error {
	m.logger.WithFields(logrus.Fields{
		"to":   email,
		"link": setupURL(m.origin, invitationToken),
	}).Info("welcome email")
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, email, resetToken string) error {
	m.logger.WithFields(logrus.Fields{
		"to":   email,
		"link": resetURL(m.origin, resetToken),
	}).Info("password reset email")
	return nil
}

func setupURL(origin, token string) string {
	return origin + "/setup-account?token=" + url.QueryEscape(token)
}

func resetURL(origin, token string) string {
	return origin + "/reset-password?token=" + url.QueryEscape(token)
}
