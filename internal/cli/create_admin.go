package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/database/members"
)

// CreateAdminCommand creates an administrator account directly in the database,
// for recovering access when nobody can log in.
type CreateAdminCommand struct {
	Username     string
	Email        string
	Password     string
	Name         string
	DatabasePath string

	// authConfig overrides the environment; tests lower the bcrypt cost with it.
	authConfig *config.Auth
}

func NewCreateAdminCommand() *CreateAdminCommand {
	return &CreateAdminCommand{}
}

func (cmd *CreateAdminCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)

	fs.StringVar(&cmd.Username, "username", "", "Login name of the new administrator (required)")
	fs.StringVar(&cmd.Email, "email", "", "Email address (required)")
	fs.StringVar(&cmd.Password, "password", "", "Password, at least 8 characters (required)")
	fs.StringVar(&cmd.Name, "name", "", "Display name (defaults to the username)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (defaults to DATABASE_PATH)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-admin [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create a verified administrator account.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s create-admin -username librarian -email desk@example.com -password s3cret-pass\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s create-admin -username librarian -email desk@example.com -password s3cret-pass -db ./library.db\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Username == "" || cmd.Email == "" || cmd.Password == "" {
		fs.Usage()
		return fmt.Errorf("username, email and password are required")
	}

	return nil
}

func (cmd *CreateAdminCommand) Run() error {
	authCfg := cmd.authConfig
	if authCfg == nil || cmd.DatabasePath == "" {
		cfg := config.NewConfig()
		if authCfg == nil {
			authCfg = &cfg.Auth
		}
		if cmd.DatabasePath == "" {
			cmd.DatabasePath = cfg.Database.Path
		}
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	svc := auth.NewService(members.NewRepository(db.DB), *authCfg)
	member, err := svc.CreateAdmin(context.Background(), auth.SignupInput{
		Name:     cmd.Name,
		Username: cmd.Username,
		Email:    cmd.Email,
		Password: cmd.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	fmt.Printf("Created administrator %q (id %d) in %s\n", member.Username, member.ID, cmd.DatabasePath)
	return nil
}
