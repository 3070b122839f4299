package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditrepo "github.com/librarydesk/librarydesk/internal/database/audit"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/validation"
)

var eventTypes = map[entities.AuditEventType]bool{
	entities.AuditEventCirculation: true,
	entities.AuditEventCatalog:     true,
	entities.AuditEventMembership:  true,
	entities.AuditEventDelete:      true,
	entities.AuditEventAuth:        true,
	entities.AuditEventSettings:    true,
	entities.AuditEventMaintenance: true,
}

type AuditController struct {
	log AuditLog
}

func NewAuditController(log AuditLog) *AuditController {
	return &AuditController{log: log}
}

// GetAuditEvents returns paginated audit events, newest first.
// GET /api/audit?type=&userId=&entityType=&entityId=&page=&limit=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	userID, ok := parseOptionalQueryID(c, "userId")
	if !ok {
		return
	}
	entityID, ok := parseOptionalQueryID(c, "entityId")
	if !ok {
		return
	}

	eventType := entities.AuditEventType(c.Query("type"))
	if eventType != "" && !eventTypes[eventType] {
		respondValidation(c, validation.FieldError{Field: "type", Message: "is not a known event type"})
		return
	}

	events, total, err := ac.log.GetEvents(c.Request.Context(), auditrepo.Filter{
		UserID:     userID,
		EventType:  eventType,
		EntityType: c.Query("entityType"),
		EntityID:   entityID,
	}, page)
	if err != nil {
		respondInternalError(c, err, "audit events")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(events, page, total))
}
