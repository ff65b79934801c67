// Package mailer sends plain text notification email over SMTP with implicit
// TLS. One connection is opened per message and always closed; transport and
// auth failures come back as errors for the caller to log, never to escalate.
package mailer

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/quickpost/quickpost/config"
)

const (
	dialTimeout = 5 * time.Second
	sendTimeout = 15 * time.Second
)

// Mailer dispatches messages through a fixed SMTP relay. Credentials are
// injected at construction, never read from globals.
type Mailer struct {
	host     string
	port     int
	sender   string
	password string
	fromName string
}

// Message is the ephemeral notification payload; it is composed at send time
// and never persisted.
type Message struct {
	To        string
	Subject   string
	Body      string
	Signature string
}

// New builds a Mailer from configuration.
func New(cfg config.AppConfig) *Mailer {
	fromName := cfg.SMTPFromName
	if fromName == "" {
		fromName = cfg.SiteName
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		sender:   cfg.SMTPSender,
		password: cfg.SMTPPassword,
		fromName: fromName,
	}
}

// Send transmits one message to one recipient and returns any transport or
// authentication error. The connection is closed whether or not transmission
// succeeds.
func (m *Mailer) Send(to, subject, body, signature string) error {
	if m.host == "" || m.sender == "" {
		return fmt.Errorf("smtp not configured")
	}

	payload := m.format(Message{To: to, Subject: subject, Body: body, Signature: signature})
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	// Implicit TLS: the relay speaks TLS from the first byte (SMTPS).
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: m.host})
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(sendTimeout))

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if m.password != "" {
		auth := smtp.PlainAuth("", m.sender, m.password, m.host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.sender); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(payload)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}

// format assembles the wire payload from named fields: headers, then the body
// and signature separated by blank lines.
func (m *Mailer) format(msg Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", encodeHeader(m.fromName), m.sender))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeHeader(msg.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n\r\n")
	b.WriteString(msg.Signature)
	b.WriteString("\r\n")
	return b.String()
}

// encodeHeader RFC 2047-encodes a header value when it contains non-ASCII.
func encodeHeader(s string) string {
	return mime.QEncoding.Encode("UTF-8", s)
}
