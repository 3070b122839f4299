package settingsstore

import (
	"context"
	"os"
	"strconv"

	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database/settings"
	"github.com/librarydesk/librarydesk/internal/entities"
)

// Value sources reported alongside effective settings.
const (
	SourceDatabase    = "database"
	SourceEnvironment = "environment"
	SourceDefault     = "default"
)

// MaxPolicyDays bounds loan and extension lengths accepted at runtime.
const MaxPolicyDays = 365

// LoanPolicy is the effective lending policy.
type LoanPolicy struct {
	DefaultLoanDays int `json:"defaultLoanDays"`
	ExtensionDays   int `json:"extensionDays"`
}

// LoanPolicyInfo includes where each value came from.
type LoanPolicyInfo struct {
	DefaultLoanDays       int    `json:"defaultLoanDays"`
	DefaultLoanDaysSource string `json:"defaultLoanDaysSource"`
	ExtensionDays         int    `json:"extensionDays"`
	ExtensionDaysSource   string `json:"extensionDaysSource"`
}

// Priority: database > environment > default
type SettingsStore struct {
	repo  *settings.Repository
	loans config.Loans
}

func New(repo *settings.Repository, loans config.Loans) *SettingsStore {
	return &SettingsStore{repo: repo, loans: loans}
}

type intSetting struct {
	key      string
	env      string
	fromEnv  int
	fallback int
}

func (s *SettingsStore) resolve(ctx context.Context, def intSetting) (int, string) {
	if setting, err := s.repo.GetSetting(ctx, def.key); err == nil && setting.Value != "" {
		if v, err := strconv.Atoi(setting.Value); err == nil && v > 0 {
			return v, SourceDatabase
		}
	}
	if _, ok := os.LookupEnv(def.env); ok && def.fromEnv > 0 {
		return def.fromEnv, SourceEnvironment
	}
	if def.fromEnv > 0 {
		return def.fromEnv, SourceDefault
	}
	return def.fallback, SourceDefault
}

func (s *SettingsStore) loanDays() intSetting {
	return intSetting{
		key:      entities.SettingKeyDefaultLoanDays,
		env:      "DEFAULT_LOAN_DAYS",
		fromEnv:  s.loans.DefaultLoanDays,
		fallback: config.DefaultLoanDays,
	}
}

func (s *SettingsStore) extensionDays() intSetting {
	return intSetting{
		key:      entities.SettingKeyExtensionDays,
		env:      "EXTENSION_DAYS",
		fromEnv:  s.loans.ExtensionDays,
		fallback: config.DefaultExtensionDays,
	}
}

// GetLoanPolicy returns the effective loan policy.
func (s *SettingsStore) GetLoanPolicy(ctx context.Context) LoanPolicy {
	days, _ := s.resolve(ctx, s.loanDays())
	ext, _ := s.resolve(ctx, s.extensionDays())
	return LoanPolicy{DefaultLoanDays: days, ExtensionDays: ext}
}

// GetLoanPolicyInfo returns the loan policy with source information.
func (s *SettingsStore) GetLoanPolicyInfo(ctx context.Context) LoanPolicyInfo {
	days, daysSource := s.resolve(ctx, s.loanDays())
	ext, extSource := s.resolve(ctx, s.extensionDays())
	return LoanPolicyInfo{
		DefaultLoanDays:       days,
		DefaultLoanDaysSource: daysSource,
		ExtensionDays:         ext,
		ExtensionDaysSource:   extSource,
	}
}

// SetLoanPolicy stores the policy in the database, overriding the environment.
func (s *SettingsStore) SetLoanPolicy(ctx context.Context, policy LoanPolicy) error {
	return s.repo.SetSettings(ctx, map[string]string{
		entities.SettingKeyDefaultLoanDays: strconv.Itoa(policy.DefaultLoanDays),
		entities.SettingKeyExtensionDays:   strconv.Itoa(policy.ExtensionDays),
	})
}

// ClearLoanPolicy removes database overrides.
func (s *SettingsStore) ClearLoanPolicy(ctx context.Context) error {
	if err := s.repo.DeleteSetting(ctx, entities.SettingKeyDefaultLoanDays); err != nil {
		return err
	}
	return s.repo.DeleteSetting(ctx, entities.SettingKeyExtensionDays)
}
