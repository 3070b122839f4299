package http

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
)

func TestSettingsController_LoanPolicy(t *testing.T) {
	env := newTestEnv(t)

	w := env.asReader(http.MethodGet, "/api/settings/loan-policy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decodeJSON[settingsstore.LoanPolicyInfo](t, w)
	assert.Equal(t, config.DefaultLoanDays, info.DefaultLoanDays)
	assert.Equal(t, settingsstore.SourceDefault, info.DefaultLoanDaysSource)
	assert.Equal(t, config.DefaultExtensionDays, info.ExtensionDays)

	w = env.asReader(http.MethodPut, "/api/settings/loan-policy", gin.H{"defaultLoanDays": 30, "extensionDays": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.asAdmin(http.MethodPut, "/api/settings/loan-policy", gin.H{"defaultLoanDays": 30, "extensionDays": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info = decodeJSON[settingsstore.LoanPolicyInfo](t, w)
	assert.Equal(t, settingsstore.LoanPolicyInfo{
		DefaultLoanDays:       30,
		DefaultLoanDaysSource: settingsstore.SourceDatabase,
		ExtensionDays:         5,
		ExtensionDaysSource:   settingsstore.SourceDatabase,
	}, info)

	w = env.asAdmin(http.MethodPut, "/api/settings/loan-policy", gin.H{"defaultLoanDays": 0, "extensionDays": 400})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []string{"defaultLoanDays", "extensionDays"}, decodeJSON[errorBody](t, w).fields())

	w = env.asAdmin(http.MethodDelete, "/api/settings/loan-policy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info = decodeJSON[settingsstore.LoanPolicyInfo](t, w)
	assert.Equal(t, config.DefaultLoanDays, info.DefaultLoanDays)
	assert.Equal(t, settingsstore.SourceDefault, info.ExtensionDaysSource)
}
