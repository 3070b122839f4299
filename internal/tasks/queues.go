package tasks

import (
	"log"

	"github.com/mikestefanello/backlite"
)

// Queue names, also used as task types by the admin API.
const (
	QueueSendVerificationEmail       = "send_verification_email"
	QueueCleanupExpiredVerifications = "cleanup_expired_verifications"
	QueueCleanupAuditEvents          = "cleanup_audit_events"
)

// TypeInfo describes a task type that can be run on demand.
type TypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Params      string `json:"params,omitempty"`
}

// Types lists the registered task types.
func Types() []TypeInfo {
	return []TypeInfo{
		{
			Type:        QueueSendVerificationEmail,
			Description: "Send a new email verification link to a member",
			Params:      "memberId",
		},
		{
			Type:        QueueCleanupExpiredVerifications,
			Description: "Clear expired email verification tokens",
		},
		{
			Type:        QueueCleanupAuditEvents,
			Description: "Delete audit events past the retention period",
			Params:      "retentionDays",
		},
	}
}

// MaintenanceReporter records the outcome of maintenance work.
type MaintenanceReporter interface {
	LogMaintenance(action string, affected int64, err error)
}

func report(reporter MaintenanceReporter, action string, affected int64, err error) {
	if reporter != nil {
		reporter.LogMaintenance(action, affected, err)
	}
}

// Dependencies are the services the queues act on.
type Dependencies struct {
	Verification  *VerificationSender
	Verifications VerificationTokenCleaner
	AuditEvents   AuditEventCleaner
	Reporter      MaintenanceReporter
}

// Queues builds every queue the server processes.
func Queues(deps Dependencies) []backlite.Queue {
	return []backlite.Queue{
		NewSendVerificationEmailQueue(deps.Verification),
		NewCleanupExpiredVerificationsQueue(deps.Verifications, deps.Reporter),
		NewCleanupAuditEventsQueue(deps.AuditEvents, deps.Reporter),
	}
}

// RegisterAll registers every queue with the client.
func (c *Client) RegisterAll(deps Dependencies) {
	c.Register(Queues(deps)...)
	log.Printf("[TASK] Registered %d queues", len(Types()))
}
