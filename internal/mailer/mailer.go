// Package mailer は確認メール・通知メールの組み立てと送信を提供する。
package mailer

import (
	"fmt"
	"net/smtp"
)

// Mailer はメール送信のインターフェース。
// 送信失敗は周囲の状態遷移に対して非致命的として扱われる（ログのみ、リトライなし）。
type Mailer interface {
	// Send はHTMLメールを1通送信する。
	Send(recipientEmail, subject, bodyHTML string) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Sender   string
	Password string
}

// SMTPMailer はSMTP経由でメールを送信する。
// ポート587ではnet/smtpがサーバーのSTARTTLS広告に応じてTLSへ昇格する。
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

// Send はHTMLメールを1通送信する。
func (m *SMTPMailer) Send(recipientEmail, subject, bodyHTML string) error {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	auth := smtp.PlainAuth("", m.config.Sender, m.config.Password, m.config.Host)

	msg := []byte("From: " + m.config.Sender + "\r\n" +
		"To: " + recipientEmail + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		bodyHTML + "\r\n")

	if err := smtp.SendMail(addr, auth, m.config.Sender, []string{recipientEmail}, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Mailer = (*SMTPMailer)(nil)
