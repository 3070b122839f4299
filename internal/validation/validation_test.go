package validation

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupBody struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Copies   int    `json:"totalCopies" binding:"gte=1"`
}

func bind(t *testing.T, body string) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req signupBody
	return c.ShouldBindJSON(&req)
}

func TestFields_ValidationErrorsUseJSONNames(t *testing.T) {
	err := bind(t, `{"username":"a!","email":"nope","password":"short","totalCopies":0}`)
	require.Error(t, err)

	fields, ok := Fields(err)
	require.True(t, ok)

	byField := map[string]string{}
	for _, f := range fields {
		byField[f.Field] = f.Message
	}
	assert.Equal(t, "is required", byField["name"])
	assert.Equal(t, "must be 3-64 characters: letters, digits, underscore or hyphen", byField["username"])
	assert.Equal(t, "must be a valid email address", byField["email"])
	assert.Equal(t, "must be at least 8 characters", byField["password"])
	assert.Equal(t, "must be greater than or equal to 1", byField["totalCopies"])
}

func TestFields_TypeAndSyntaxErrors(t *testing.T) {
	fields, ok := Fields(bind(t, `{"totalCopies":"two"}`))
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "totalCopies", fields[0].Field)

	fields, ok = Fields(bind(t, `{"name":`))
	require.True(t, ok)
	assert.Equal(t, "body", fields[0].Field)

	fields, ok = Fields(bind(t, ``))
	require.True(t, ok)
	assert.Equal(t, "body", fields[0].Field)
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("ann_lee-2"))
	assert.False(t, ValidUsername("an"))
	assert.False(t, ValidUsername("ann lee"))
}
