package email

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/cdmx-in/isms-manager-sub001/internal/config"
)

// Service handles email operations
type Service struct {
	config *config.EmailConfig
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig) *Service {
	return &Service{
		config: cfg,
	}
}

// Enabled reports whether an SMTP host is configured. Without one,
// every send is a silent no-op so notification delivery stays
// best-effort.
func (s *Service) Enabled() bool {
	return s.config.SMTPHost != ""
}

// SendNotification sends a notification email with the given subject
// and pre-rendered body text.
func (s *Service) SendNotification(to, subject, bodyText, entityLink string) error {
	if !s.Enabled() {
		return nil
	}

	link := ""
	if entityLink != "" {
		link = fmt.Sprintf(`
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #4a90e2; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Open in ISMS Manager</a>
        </div>`, entityLink)
	}

	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #4a90e2;">%s</h2>
        <p>%s</p>%s
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated email. Please do not reply.</p>
    </div>
</body>
</html>
`, subject, subject, bodyText, link)

	return s.sendEmail(to, subject, body)
}

// EntityLink builds a frontend deep link for an entity.
func (s *Service) EntityLink(orgID uint, entityKind string, entityID uint) string {
	return fmt.Sprintf("%s/organizations/%d/%s/%d", s.config.AppBaseURL, orgID, entityKind, entityID)
}

func (s *Service) sendEmail(to, subject, body string) error {
	var message bytes.Buffer
	fmt.Fprintf(&message, "From: %s\r\n", s.config.SMTPFrom)
	fmt.Fprintf(&message, "To: %s\r\n", to)
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := net.JoinHostPort(s.config.SMTPHost, s.config.SMTPPort)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	// Local relays like Mailpit run without credentials, so auth is
	// attempted only when configured and its failure is not fatal.
	if s.config.SMTPUsername != "" && s.config.SMTPPassword != "" {
		auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
		_ = client.Auth(auth)
	}

	if err := client.Mail(s.config.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set sender %s: %w", s.config.SMTPFrom, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data stream: %w", err)
	}
	if _, err := wc.Write(message.Bytes()); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	slog.Info("Email sent", "to", to, "subject", subject)
	return nil
}
