package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Menzorg/rugpt/notify"
)

// Sender delivers notifications over SMTP. The channel config must
// carry the recipient under "email"; an optional "subject" overrides
// the sender-level default.
type Sender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	Timeout  time.Duration
}

func NewSender(host string, port int, username, password, from string) *Sender {
	if port <= 0 {
		port = 587
	}
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Subject:  "Notification",
		Timeout:  30 * time.Second,
	}
}

func (s *Sender) Kind() notify.ChannelKind { return notify.ChannelEmail }

func (s *Sender) Send(ctx context.Context, config map[string]string, content string) error {
	to := strings.TrimSpace(config["email"])
	if to == "" {
		return fmt.Errorf("channel config has no email address")
	}
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	subject := strings.TrimSpace(config["subject"])
	if subject == "" {
		subject = s.Subject
	}
	msg := s.buildMessage(to, subject, content)
	addr := net.JoinHostPort(s.Host, fmt.Sprintf("%d", s.Port))

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	// smtp.SendMail has no context support; run it on the side and
	// honor cancellation from here.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.From, []string{to}, msg)
	}()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("smtp send to %s timed out after %s", to, timeout)
	}
}

func (s *Sender) buildMessage(to, subject, content string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(content)
	b.WriteString("\r\n")
	return []byte(b.String())
}
