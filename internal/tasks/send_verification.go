package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/mail"
)

// TokenIssuer creates a fresh verification token for a member.
type TokenIssuer interface {
	IssueVerificationToken(ctx context.Context, memberID uint) (string, *entities.Member, error)
}

// VerificationSender issues a token and mails the verification link.
type VerificationSender struct {
	issuer      TokenIssuer
	mailer      mail.Mailer
	frontendURL string
	tokenTTL    time.Duration
}

func NewVerificationSender(issuer TokenIssuer, mailer mail.Mailer, frontendURL string, tokenTTL time.Duration) *VerificationSender {
	return &VerificationSender{
		issuer:      issuer,
		mailer:      mailer,
		frontendURL: frontendURL,
		tokenTTL:    tokenTTL,
	}
}

// Send mails a new verification link to the member. Every call replaces the
// previous token, so only the latest email works. Members that are already
// verified or have no email are skipped.
func (s *VerificationSender) Send(ctx context.Context, memberID uint) error {
	token, member, err := s.issuer.IssueVerificationToken(ctx, memberID)
	switch {
	case errors.Is(err, auth.ErrAlreadyVerified), errors.Is(err, auth.ErrNoEmail), errors.Is(err, auth.ErrUserNotFound):
		log.Printf("[TASK] Skipping verification email for member %d: %v", memberID, err)
		return nil
	case err != nil:
		return fmt.Errorf("issue verification token: %w", err)
	}

	msg, err := mail.VerificationMessage(s.frontendURL, member, token, s.tokenTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

// SendVerificationEmailTask delivers the verification email after signup
// or a resend request.
type SendVerificationEmailTask struct {
	MemberID uint `json:"memberId"`
}

// Config returns the queue configuration for verification emails. SMTP
// failures are retried with backoff.
func (t SendVerificationEmailTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueSendVerificationEmail,
		MaxAttempts: 5,
		Backoff:     time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   72 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SendVerificationEmailProcessor creates a processor function for SendVerificationEmailTask.
func SendVerificationEmailProcessor(sender *VerificationSender) backlite.QueueProcessor[SendVerificationEmailTask] {
	return func(ctx context.Context, task SendVerificationEmailTask) error {
		if sender == nil {
			return fmt.Errorf("verification sender not configured")
		}
		if err := sender.Send(ctx, task.MemberID); err != nil {
			return fmt.Errorf("send verification email to member %d: %w", task.MemberID, err)
		}
		return nil
	}
}

// NewSendVerificationEmailQueue creates a backlite queue for verification emails.
func NewSendVerificationEmailQueue(sender *VerificationSender) backlite.Queue {
	return backlite.NewQueue(SendVerificationEmailProcessor(sender))
}

// VerificationNotifier hands verification emails to the task queue, or sends
// them inline when the queue is disabled.
type VerificationNotifier struct {
	client *Client
	sender *VerificationSender
}

// NewVerificationNotifier creates a notifier. client may be nil.
func NewVerificationNotifier(client *Client, sender *VerificationSender) *VerificationNotifier {
	return &VerificationNotifier{client: client, sender: sender}
}

func (n *VerificationNotifier) NotifyVerification(ctx context.Context, memberID uint) error {
	if n.client != nil {
		id, err := n.client.Enqueue(SendVerificationEmailTask{MemberID: memberID})
		if err != nil {
			return err
		}
		log.Printf("[TASK] Queued verification email for member %d (task %s)", memberID, id)
		return nil
	}
	return n.sender.Send(ctx, memberID)
}
