package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/database/members"
)

func TestCreateAdminCommand_ParseFlags(t *testing.T) {
	cmd := NewCreateAdminCommand()
	err := cmd.ParseFlags([]string{"-username", "librarian", "-email", "desk@example.com", "-password", "long-enough", "-db", "lib.db"})
	require.NoError(t, err)
	assert.Equal(t, "librarian", cmd.Username)
	assert.Equal(t, "lib.db", cmd.DatabasePath)
	assert.Empty(t, cmd.Name)

	err = NewCreateAdminCommand().ParseFlags([]string{"-username", "librarian"})
	assert.Error(t, err)
}

func TestCreateAdminCommand_Run(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	newCmd := func(username string) *CreateAdminCommand {
		return &CreateAdminCommand{
			Username:     username,
			Email:        username + "@example.com",
			Password:     "long-enough",
			DatabasePath: dbPath,
			authConfig:   &config.Auth{BcryptCost: bcrypt.MinCost},
		}
	}

	require.NoError(t, newCmd("librarian").Run())
	assert.Error(t, newCmd("librarian").Run(), "duplicate username")

	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	count, err := members.NewRepository(db.DB).CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
