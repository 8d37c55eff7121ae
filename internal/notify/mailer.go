// Package notify sends transactional email. Delivery is best effort; callers
// fire it from a goroutine and a failed send never fails the request that
// triggered it.
package notify

import (
	"fmt"
	"log"
	"net/smtp"
)

// Mailer is implemented by SMTPMailer and by NopMailer when SMTP is not
// configured.
type Mailer interface {
	Send(to, subject, body string)
}

type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
}

func NewSMTPMailer(host, port, username, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, username: username, password: password}
}

func (m *SMTPMailer) Send(to, subject, body string) {
	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	msg := []byte(
		"From: " + m.username + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, m.username, []string{to}, msg); err != nil {
		log.Printf("ERROR: smtp send to %s: %v", to, err)
	}
}

// NopMailer drops all mail. Used in development and tests.
type NopMailer struct{}

func (NopMailer) Send(to, subject, body string) {}
