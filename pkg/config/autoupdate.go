package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig bounds how many automatic updates may be started
type RateLimitConfig struct {
	// MaxUpdatesPerTenant caps completed updates per tenant in the trailing hour
	MaxUpdatesPerTenant int `yaml:"maxUpdatesPerTenant" json:"max_updates_per_tenant" validate:"min=1"`
	// MaxUpdatesPerHour caps triggered updates (any status) per user in the trailing hour
	MaxUpdatesPerHour int `yaml:"maxUpdatesPerHour" json:"max_updates_per_hour" validate:"min=1"`
	// CooldownMinutes is a global debounce: no trigger if any update started this recently
	CooldownMinutes int `yaml:"cooldownMinutes" json:"cooldown_minutes" validate:"min=0"`
}

// SafetyConfig holds the safety rails applied before every automatic deployment
type SafetyConfig struct {
	RequirePriorDeployment        bool            `yaml:"requirePriorDeployment" json:"require_prior_deployment"`
	VerifyConsentBeforeDeployment bool            `yaml:"verifyConsentBeforeDeployment" json:"verify_consent_before_deployment"`
	MaxConsecutiveFailures        int             `yaml:"maxConsecutiveFailures" json:"max_consecutive_failures" validate:"min=1"`
	RateLimits                    RateLimitConfig `yaml:"rateLimits" json:"rate_limits"`
	ClaimLeaseMinutes             int             `yaml:"claimLeaseMinutes" json:"claim_lease_minutes" validate:"min=1"`
}

// SweepConfig controls the periodic update checker
type SweepConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule" validate:"required"`
}

// CatalogConfig controls the winget catalog client
type CatalogConfig struct {
	APIBaseURL  string        `yaml:"apiBaseURL" json:"api_base_url" validate:"required,url"`
	RawBaseURL  string        `yaml:"rawBaseURL" json:"raw_base_url" validate:"required,url"`
	Repository  string        `yaml:"repository" json:"repository" validate:"required"`
	Branch      string        `yaml:"branch" json:"branch" validate:"required"`
	GitHubToken string        `yaml:"-" json:"-"`
	CacheTTL    time.Duration `yaml:"cacheTTL" json:"cache_ttl"`
	MaxRetries  int           `yaml:"maxRetries" json:"max_retries" validate:"min=0,max=10"`

	// RequestsPerSecond throttles outgoing catalog requests; 0 means unlimited
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requests_per_second" validate:"min=0"`
}

// AutoUpdateConfig is the complete configuration of the auto-update module
type AutoUpdateConfig struct {
	Safety  SafetyConfig  `yaml:"safety" json:"safety"`
	Sweep   SweepConfig   `yaml:"sweep" json:"sweep"`
	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`
}

// DefaultSafetyConfig returns the built-in safety rails
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		RequirePriorDeployment:        true,
		VerifyConsentBeforeDeployment: true,
		MaxConsecutiveFailures:        3,
		RateLimits: RateLimitConfig{
			MaxUpdatesPerTenant: 10,
			MaxUpdatesPerHour:   5,
			CooldownMinutes:     5,
		},
		ClaimLeaseMinutes: 10,
	}
}

// DefaultAutoUpdateConfig returns the configuration used when nothing is set
func DefaultAutoUpdateConfig() AutoUpdateConfig {
	return AutoUpdateConfig{
		Safety: DefaultSafetyConfig(),
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "0 */15 * * * *",
		},
		Catalog: CatalogConfig{
			APIBaseURL: "https://api.github.com",
			RawBaseURL: "https://raw.githubusercontent.com",
			Repository: "microsoft/winget-pkgs",
			Branch:     "master",
			CacheTTL:   time.Hour,
			MaxRetries: 2,

			RequestsPerSecond: 5,
		},
	}
}

// LoadAutoUpdateConfig reads the configuration from the environment and then applies
// the YAML file named by AUTO_UPDATE_CONFIG_FILE, if any. Keys present in the file win.
func LoadAutoUpdateConfig() (AutoUpdateConfig, error) {
	cfg := DefaultAutoUpdateConfig()

	s := &cfg.Safety
	s.RequirePriorDeployment = GetBoolEnv("AUTO_UPDATE_REQUIRE_PRIOR_DEPLOYMENT", s.RequirePriorDeployment)
	s.VerifyConsentBeforeDeployment = GetBoolEnv("AUTO_UPDATE_VERIFY_CONSENT", s.VerifyConsentBeforeDeployment)
	s.MaxConsecutiveFailures = GetIntEnv("AUTO_UPDATE_MAX_CONSECUTIVE_FAILURES", s.MaxConsecutiveFailures)
	s.RateLimits.MaxUpdatesPerTenant = GetIntEnv("AUTO_UPDATE_MAX_PER_TENANT", s.RateLimits.MaxUpdatesPerTenant)
	s.RateLimits.MaxUpdatesPerHour = GetIntEnv("AUTO_UPDATE_MAX_PER_HOUR", s.RateLimits.MaxUpdatesPerHour)
	s.RateLimits.CooldownMinutes = GetIntEnv("AUTO_UPDATE_COOLDOWN_MINUTES", s.RateLimits.CooldownMinutes)
	s.ClaimLeaseMinutes = GetIntEnv("AUTO_UPDATE_CLAIM_LEASE_MINUTES", s.ClaimLeaseMinutes)

	cfg.Sweep.Enabled = GetBoolEnv("AUTO_UPDATE_SWEEP_ENABLED", cfg.Sweep.Enabled)
	cfg.Sweep.Schedule = GetEnv("AUTO_UPDATE_SCHEDULE", cfg.Sweep.Schedule)

	cfg.Catalog.APIBaseURL = GetEnv("WINGET_API_BASE_URL", cfg.Catalog.APIBaseURL)
	cfg.Catalog.RawBaseURL = GetEnv("WINGET_RAW_BASE_URL", cfg.Catalog.RawBaseURL)
	cfg.Catalog.Repository = GetEnv("WINGET_REPOSITORY", cfg.Catalog.Repository)
	cfg.Catalog.Branch = GetEnv("WINGET_BRANCH", cfg.Catalog.Branch)
	cfg.Catalog.CacheTTL = GetDurationEnv("WINGET_CACHE_TTL", cfg.Catalog.CacheTTL)
	cfg.Catalog.RequestsPerSecond = GetFloatEnv("WINGET_REQUESTS_PER_SECOND", cfg.Catalog.RequestsPerSecond)
	cfg.Catalog.GitHubToken = GetEnv("GITHUB_TOKEN", "")

	if path := GetEnv("AUTO_UPDATE_CONFIG_FILE", ""); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyConfigFile(cfg *AutoUpdateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read auto-update config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse auto-update config file %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges of the configuration
func (c AutoUpdateConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid auto-update configuration: %w", err)
	}
	return nil
}

// CooldownWindow returns the global cooldown as a duration
func (s SafetyConfig) CooldownWindow() time.Duration {
	return time.Duration(s.RateLimits.CooldownMinutes) * time.Minute
}

// ClaimLease returns how long a trigger may hold a policy before the claim expires
func (s SafetyConfig) ClaimLease() time.Duration {
	return time.Duration(s.ClaimLeaseMinutes) * time.Minute
}
