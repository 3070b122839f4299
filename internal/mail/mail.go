// Package mail delivers the emails the library sends to members.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"sync"
	"time"

	gomail "github.com/go-mail/mail/v2"

	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/entities"
)

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP mailer when credentials are configured and a LogMailer otherwise.
func New(cfg config.Email) Mailer {
	if cfg.SMTPConfigured() {
		return NewSMTPMailer(cfg)
	}
	log.Printf("[MAIL] SMTP not configured (EMAIL_USER/EMAIL_PASS), emails will be logged")
	return &LogMailer{}
}

// SMTPMailer sends mail through an authenticated SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.Email) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.Timeout = 15 * time.Second
	if cfg.Port == 587 {
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	return &SMTPMailer{dialer: d, from: cfg.Sender()}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.from, "Library")
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	log.Printf("[MAIL] Sent %q to %s", msg.Subject, msg.To)
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used in
// development and tests.
type LogMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	log.Printf("[MAIL] To: %s Subject: %s\n%s", msg.To, msg.Subject, msg.Text)
	return nil
}

// Sent returns a copy of the messages logged so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// VerificationLink is the frontend page that consumes a verification token.
func VerificationLink(frontendURL, token string) string {
	return frontendURL + "/verify-email?token=" + url.QueryEscape(token)
}

var verificationHTML = template.Must(template.New("verify").Parse(`<p>Hi {{.Name}},</p>
<p>Please confirm your email address to finish creating your library account.</p>
<p><a href="{{.Link}}">Verify my email</a></p>
<p>The link expires in {{.TTL}}. If you did not sign up, you can ignore this email.</p>
`))

// VerificationMessage builds the email carrying a verification link.
func VerificationMessage(frontendURL string, member *entities.Member, token string, ttl time.Duration) (Message, error) {
	link := VerificationLink(frontendURL, token)
	expires := humanDuration(ttl)

	var html bytes.Buffer
	err := verificationHTML.Execute(&html, struct {
		Name string
		Link string
		TTL  string
	}{member.Name, link, expires})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render verification email: %w", err)
	}

	return Message{
		To:      member.EmailAddress(),
		Subject: "Verify your email address",
		Text: fmt.Sprintf("Hi %s,\n\nPlease confirm your email address by opening this link:\n\n%s\n\nThe link expires in %s.\n",
			member.Name, link, expires),
		HTML: html.String(),
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		if days := int(d / (24 * time.Hour)); days != 1 {
			return fmt.Sprintf("%d days", days)
		}
		return "24 hours"
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return d.String()
	}
}
