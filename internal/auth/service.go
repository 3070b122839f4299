package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/validation"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address has not been verified")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrInvalidToken       = errors.New("invalid verification token")
	ErrTokenExpired       = errors.New("verification token has expired")
	ErrAlreadyVerified    = errors.New("email address is already verified")
	ErrNoEmail            = errors.New("member has no email address")
	ErrSetupComplete      = errors.New("setup has already been completed")
	ErrNameRequired       = errors.New("name is required")
	ErrUsernameInvalid    = errors.New("username must be 3-64 characters, alphanumeric and underscore/hyphen only")
	ErrEmailInvalid       = errors.New("invalid email format")
)

// LockedError reports an account lockout and when it ends.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return ErrAccountLocked.Error()
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// MemberStore is the member persistence the auth service needs.
type MemberStore interface {
	CreateMember(ctx context.Context, member *entities.Member) error
	GetMemberByID(ctx context.Context, id uint) (*entities.Member, error)
	GetMemberByIdentifier(ctx context.Context, identifier string) (*entities.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*entities.Member, error)
	GetMemberByVerificationToken(ctx context.Context, tokenHash string) (*entities.Member, error)
	SetVerificationToken(ctx context.Context, id uint, tokenHash string, expires time.Time) error
	MarkEmailVerified(ctx context.Context, id uint) error
	RecordLogin(ctx context.Context, id uint, at time.Time) error
	RecordFailedLogin(ctx context.Context, id uint, lockedUntil *time.Time) error
	CountMembers(ctx context.Context) (int64, error)
}

// SignupInput is a self-service registration.
type SignupInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Service handles authentication and account verification.
type Service struct {
	members MemberStore
	config  config.Auth
	now     func() time.Time
}

// NewService creates a new authentication service.
func NewService(members MemberStore, cfg config.Auth) *Service {
	return &Service{
		members: members,
		config:  cfg,
		now:     time.Now,
	}
}

func (s *Service) validate(in SignupInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if !validation.ValidUsername(in.Username) {
		return ErrUsernameInvalid
	}
	// RFC 5321 limit is 254
	if len(in.Email) > 254 || !emailPattern.MatchString(in.Email) {
		return ErrEmailInvalid
	}
	return ValidatePassword(in.Password)
}

// HashPassword hashes with the configured bcrypt cost.
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.config.BcryptCost)
}

// Signup registers an unverified member. The caller arranges for the
// verification email; see IssueVerificationToken.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*entities.Member, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate(in); err != nil {
		return nil, err
	}

	passwordHash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	email := in.Email
	member := &entities.Member{
		Name:           strings.TrimSpace(in.Name),
		Username:       in.Username,
		Email:          &email,
		PasswordHash:   passwordHash,
		MembershipDate: s.now().UTC(),
	}
	if err := s.members.CreateMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// CreateAdmin creates a verified admin account.
func (s *Service) CreateAdmin(ctx context.Context, in SignupInput) (*entities.Member, error) {
	if strings.TrimSpace(in.Name) == "" {
		in.Name = in.Username
	}
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate(in); err != nil {
		return nil, err
	}

	passwordHash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	email := in.Email
	member := &entities.Member{
		Name:           strings.TrimSpace(in.Name),
		Username:       in.Username,
		Email:          &email,
		PasswordHash:   passwordHash,
		IsAdmin:        true,
		EmailVerified:  true,
		MembershipDate: s.now().UTC(),
	}
	if err := s.members.CreateMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// Setup creates the first admin. It fails with ErrSetupComplete once any
// member exists; callers serialize concurrent setups.
func (s *Service) Setup(ctx context.Context, in SignupInput) (*entities.Member, error) {
	hasMembers, err := s.HasMembers(ctx)
	if err != nil {
		return nil, err
	}
	if hasMembers {
		return nil, ErrSetupComplete
	}
	return s.CreateAdmin(ctx, in)
}

// IssueVerificationToken replaces the member's verification token and
// returns the new plaintext token.
func (s *Service) IssueVerificationToken(ctx context.Context, memberID uint) (string, *entities.Member, error) {
	member, err := s.GetMemberByID(ctx, memberID)
	if err != nil {
		return "", nil, err
	}
	if member.EmailVerified {
		return "", nil, ErrAlreadyVerified
	}
	if member.Email == nil {
		return "", nil, ErrNoEmail
	}

	plaintext, hash, err := GenerateVerificationToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	expires := s.now().Add(s.config.VerificationTokenTTL)
	if err := s.members.SetVerificationToken(ctx, member.ID, hash, expires); err != nil {
		return "", nil, fmt.Errorf("failed to save token: %w", err)
	}
	return plaintext, member, nil
}

// VerifyEmail marks the owner of token as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*entities.Member, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	member, err := s.members.GetMemberByVerificationToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if member.EmailVerificationExpires == nil || s.now().After(*member.EmailVerificationExpires) {
		return nil, ErrTokenExpired
	}
	if err := s.members.MarkEmailVerified(ctx, member.ID); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}
	member.EmailVerified = true
	return member, nil
}

// MemberForResend finds the unverified member a new verification email
// should go to.
func (s *Service) MemberForResend(ctx context.Context, email string) (*entities.Member, error) {
	member, err := s.members.GetMemberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if member.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	return member, nil
}

// Authenticate validates credentials. identifier is a username or an email.
// On ErrEmailNotVerified the member is returned alongside the error.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*entities.Member, error) {
	member, err := s.members.GetMemberByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if !member.HasPassword() {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if member.LockedUntil != nil && now.Before(*member.LockedUntil) {
		return nil, &LockedError{RetryAfter: member.LockedUntil.Sub(now)}
	}

	if err := CheckPassword(password, member.PasswordHash); err != nil {
		s.recordFailedLogin(ctx, member)
		return nil, ErrInvalidCredentials
	}

	if member.Email != nil && !member.EmailVerified {
		return member, ErrEmailNotVerified
	}

	if err := s.members.RecordLogin(ctx, member.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	return member, nil
}

// recordFailedLogin bumps the counter and locks the account once the limit is reached.
func (s *Service) recordFailedLogin(ctx context.Context, member *entities.Member) {
	maxAttempts := s.config.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var lockedUntil *time.Time
	if member.FailedLoginCount+1 >= maxAttempts {
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = 30 * time.Minute
		}
		until := s.now().Add(lockout)
		lockedUntil = &until
	}
	if err := s.members.RecordFailedLogin(ctx, member.ID, lockedUntil); err != nil {
		log.Printf("Failed to record failed login for member %d: %v", member.ID, err)
	}
}

// GetMemberByID retrieves a member by ID.
func (s *Service) GetMemberByID(ctx context.Context, id uint) (*entities.Member, error) {
	member, err := s.members.GetMemberByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return member, nil
}

// HasMembers returns true if any members exist.
func (s *Service) HasMembers(ctx context.Context) (bool, error) {
	count, err := s.members.CountMembers(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
