package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
)

// SettingsController manages runtime settings stored in the database.
type SettingsController struct {
	store   LoanPolicyStore
	auditor Auditor
}

func NewSettingsController(store LoanPolicyStore, auditor Auditor) *SettingsController {
	return &SettingsController{store: store, auditor: auditorOrNop(auditor)}
}

type loanPolicyRequest struct {
	DefaultLoanDays int `json:"defaultLoanDays" binding:"required,gte=1,lte=365"`
	ExtensionDays   int `json:"extensionDays" binding:"required,gte=1,lte=365"`
}

// GetLoanPolicy handles GET /api/settings/loan-policy
// Each value reports whether it came from the database, environment or default.
func (sc *SettingsController) GetLoanPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, sc.store.GetLoanPolicyInfo(c.Request.Context()))
}

// UpdateLoanPolicy handles PUT /api/settings/loan-policy
func (sc *SettingsController) UpdateLoanPolicy(c *gin.Context) {
	var req loanPolicyRequest
	if !bindJSON(c, &req) {
		return
	}

	policy := settingsstore.LoanPolicy{DefaultLoanDays: req.DefaultLoanDays, ExtensionDays: req.ExtensionDays}
	if err := sc.store.SetLoanPolicy(c.Request.Context(), policy); err != nil {
		respondInternalError(c, err, "save loan policy")
		return
	}
	sc.auditor.LogSettings(auth.AuditActor(c), "loan_policy_update",
		fmt.Sprintf("Loan policy set to %d days, extensions %d days", policy.DefaultLoanDays, policy.ExtensionDays))
	c.JSON(http.StatusOK, sc.store.GetLoanPolicyInfo(c.Request.Context()))
}

// ResetLoanPolicy handles DELETE /api/settings/loan-policy
// Falls back to the environment or built-in defaults.
func (sc *SettingsController) ResetLoanPolicy(c *gin.Context) {
	if err := sc.store.ClearLoanPolicy(c.Request.Context()); err != nil {
		respondInternalError(c, err, "reset loan policy")
		return
	}
	sc.auditor.LogSettings(auth.AuditActor(c), "loan_policy_reset", "Loan policy reset to defaults")
	c.JSON(http.StatusOK, sc.store.GetLoanPolicyInfo(c.Request.Context()))
}
