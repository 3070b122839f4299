package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// VerificationTokenCleaner clears verification tokens past their expiry.
type VerificationTokenCleaner interface {
	ClearExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

// CleanupExpiredVerificationsTask drops expired email verification tokens.
// Members keep their accounts and can request a new email.
type CleanupExpiredVerificationsTask struct{}

// Config returns the queue configuration for verification cleanup tasks.
func (t CleanupExpiredVerificationsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueCleanupExpiredVerifications,
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupExpiredVerificationsProcessor creates a processor function for CleanupExpiredVerificationsTask.
func CleanupExpiredVerificationsProcessor(cleaner VerificationTokenCleaner, reporter MaintenanceReporter) backlite.QueueProcessor[CleanupExpiredVerificationsTask] {
	return func(ctx context.Context, _ CleanupExpiredVerificationsTask) error {
		if cleaner == nil {
			return fmt.Errorf("verification token cleaner not configured")
		}

		cleared, err := cleaner.ClearExpiredVerificationTokens(ctx, time.Now())
		report(reporter, QueueCleanupExpiredVerifications, cleared, err)
		if err != nil {
			return fmt.Errorf("cleanup expired verifications: %w", err)
		}

		log.Printf("[TASK] Cleared %d expired verification tokens", cleared)
		return nil
	}
}

// NewCleanupExpiredVerificationsQueue creates a backlite queue for verification cleanup tasks.
func NewCleanupExpiredVerificationsQueue(cleaner VerificationTokenCleaner, reporter MaintenanceReporter) backlite.Queue {
	return backlite.NewQueue(CleanupExpiredVerificationsProcessor(cleaner, reporter))
}
