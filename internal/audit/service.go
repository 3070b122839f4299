package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/database/audit"
	"github.com/librarydesk/librarydesk/internal/entities"
)

// RequestIDContextKey is the gin context key holding the request id.
const RequestIDContextKey = "request_id"

// Actor identifies who triggered an event. The zero Actor is the system.
type Actor struct {
	UserID    uint
	IPAddress string
	UserAgent string
	RequestID string
}

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
// The request context is not used so events survive the response.
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(context.Background(), event); err != nil {
			log.Printf("[AUDIT] Failed to log %s event: %v", event.Action, err)
		}
	}()
}

// Wait blocks until every LogAsync call so far has been written.
func (s *Service) Wait() {
	s.pending.Wait()
}

func newEvent(actor Actor, eventType entities.AuditEventType, action, description string) *entities.AuditEvent {
	return &entities.AuditEvent{
		UserID:      actor.UserID,
		EventType:   eventType,
		Action:      action,
		Description: truncate(description, 500),
		IPAddress:   actor.IPAddress,
		UserAgent:   truncate(actor.UserAgent, 500),
		RequestID:   actor.RequestID,
		Status:      entities.AuditStatusSuccess,
	}
}

func forEntity(event *entities.AuditEvent, entityType string, id uint) *entities.AuditEvent {
	event.EntityType = entityType
	event.EntityID = &id
	return event
}

// LogCirculation records a loan lifecycle event (borrow, return, extend...).
func (s *Service) LogCirculation(actor Actor, action string, b *entities.Borrowing) {
	description := fmt.Sprintf("Borrowing %d: book %d, member %d", b.ID, b.BookID, b.UserID)
	if b.Book != nil && b.User != nil {
		description = fmt.Sprintf("%s: %q for %s", action, b.Book.Title, b.User.Username)
	}
	event := forEntity(newEvent(actor, entities.AuditEventCirculation, action, description), "borrowing", b.ID)

	metadata := map[string]any{
		"book_id":  b.BookID,
		"user_id":  b.UserID,
		"due_date": b.DueDate.Format("2006-01-02"),
		"status":   b.Status,
	}
	if mdBytes, err := json.Marshal(metadata); err == nil {
		event.Metadata = string(mdBytes)
	}

	s.LogAsync(event)
}

// LogCatalog records a change to a book.
func (s *Service) LogCatalog(actor Actor, action string, book *entities.Book) {
	description := fmt.Sprintf("%s: %q by %s", action, book.Title, book.Author)
	s.LogAsync(forEntity(newEvent(actor, entities.AuditEventCatalog, action, description), "book", book.ID))
}

// LogMembership records a change to a member.
func (s *Service) LogMembership(actor Actor, action string, member *entities.Member) {
	description := fmt.Sprintf("%s: %s (%s)", action, member.Name, member.Username)
	s.LogAsync(forEntity(newEvent(actor, entities.AuditEventMembership, action, description), "member", member.ID))
}

// LogDelete records a deletion event.
func (s *Service) LogDelete(actor Actor, entityType string, entityID uint, entityName string) {
	event := newEvent(actor, entities.AuditEventDelete, entityType+"_delete", "Deleted "+entityType+": "+entityName)
	s.LogAsync(forEntity(event, entityType, entityID))
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(actor Actor, action string, success bool) {
	event := newEvent(actor, entities.AuditEventAuth, action, "")
	if !success {
		event.Status = entities.AuditStatusFailed
	}
	s.LogAsync(event)
}

// LogSettings records a settings change event.
func (s *Service) LogSettings(actor Actor, action, description string) {
	s.LogAsync(newEvent(actor, entities.AuditEventSettings, action, description))
}

// LogMaintenance records the outcome of a background cleanup.
func (s *Service) LogMaintenance(action string, affected int64, err error) {
	event := newEvent(Actor{}, entities.AuditEventMaintenance, action, fmt.Sprintf("%d records affected", affected))
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// GetEvents retrieves a page of audit events.
func (s *Service) GetEvents(ctx context.Context, filter audit.Filter, page database.Page) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(ctx, filter, page)
}

// DeleteOldEvents removes events older than the retention period.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
