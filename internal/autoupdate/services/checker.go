package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"intuneget/internal/autoupdate/models"
	"intuneget/pkg/winget"
)

// Catalog resolves the newest published package version
type Catalog interface {
	LatestVersion(ctx context.Context, wingetID, architecture string) (*winget.Package, error)
}

// SweepSummary counts the outcome of one sweep
type SweepSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Checked    int           `json:"checked"`
	UpToDate   int           `json:"up_to_date"`
	Triggered  int           `json:"triggered"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	// Errors counts catalog lookups that failed before a trigger could run
	Errors     int           `json:"errors"`
	ErrorNotes []string      `json:"error_notes,omitempty"`
}

const maxErrorNotes = 20

func (s *SweepSummary) note(format string, args ...any) {
	if len(s.ErrorNotes) < maxErrorNotes {
		s.ErrorNotes = append(s.ErrorNotes, fmt.Sprintf(format, args...))
	}
}

// UpdateChecker compares eligible policies against the catalog and triggers updates
type UpdateChecker struct {
	service *AutoUpdateService
	catalog Catalog
	locker  Locker

	mu   sync.Mutex
	last *SweepSummary
}

// NewUpdateChecker creates a checker. A nil locker runs sweeps unlocked.
func NewUpdateChecker(service *AutoUpdateService, catalog Catalog, locker Locker) *UpdateChecker {
	return &UpdateChecker{service: service, catalog: catalog, locker: locker}
}

// LastSummary returns the most recent sweep summary, nil before the first sweep
func (c *UpdateChecker) LastSummary() *SweepSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	summary := *c.last
	return &summary
}

// RunSweep processes every eligible policy once, sequentially. It returns
// ErrSweepInProgress when another instance holds the sweep lock.
func (c *UpdateChecker) RunSweep(ctx context.Context) (*SweepSummary, error) {
	if c.locker != nil {
		release, err := c.locker.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if release == nil {
			return nil, ErrSweepInProgress
		}
		defer release()
	}

	summary := &SweepSummary{StartedAt: c.service.now()}
	start := time.Now()

	policies, err := c.service.GetEligiblePolicies(ctx, "", "")
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Auto-update sweep started", slog.Int("policies", len(policies)))

	for i := range policies {
		if err := ctx.Err(); err != nil {
			summary.Errors++
			summary.note("sweep cancelled: %v", err)
			break
		}
		c.checkPolicy(ctx, &policies[i], summary)
	}

	summary.Duration = time.Since(start)
	sweepDuration.Observe(summary.Duration.Seconds())

	c.mu.Lock()
	c.last = summary
	c.mu.Unlock()

	slog.InfoContext(ctx, "Auto-update sweep finished",
		slog.Int("checked", summary.Checked),
		slog.Int("up_to_date", summary.UpToDate),
		slog.Int("triggered", summary.Triggered),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int("errors", summary.Errors),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (c *UpdateChecker) checkPolicy(ctx context.Context, policy *models.AppUpdatePolicy, summary *SweepSummary) {
	summary.Checked++

	var architecture string
	if policy.DeploymentConfig != nil {
		architecture = policy.DeploymentConfig.Architecture
	}

	pkg, err := c.catalog.LatestVersion(ctx, policy.WingetID, architecture)
	if err != nil {
		sweepPolicies.WithLabelValues("catalog_error").Inc()
		summary.Errors++
		summary.note("%s: %v", policy.WingetID, err)
		slog.WarnContext(ctx, "Catalog lookup failed",
			slog.String("policy_id", policy.ID),
			slog.String("winget_id", policy.WingetID),
			slog.String("error", err.Error()),
		)
		return
	}

	current := policy.CurrentVersion()
	if !winget.IsNewer(current, pkg.Version) {
		sweepPolicies.WithLabelValues("up_to_date").Inc()
		summary.UpToDate++
		return
	}

	info := models.UpdateInfo{
		WingetID:        policy.WingetID,
		CurrentVersion:  current,
		LatestVersion:   pkg.Version,
		InstallerURL:    pkg.InstallerURL,
		InstallerSHA256: pkg.InstallerSHA256,
		InstallerType:   pkg.InstallerType,
		Architecture:    pkg.Architecture,
	}
	if policy.DeploymentConfig != nil {
		info.DisplayName = policy.DeploymentConfig.DisplayName
		info.CurrentIntuneAppID = policy.DeploymentConfig.IntuneAppID
	}

	result := c.service.TriggerAutoUpdate(ctx, policy, info)
	switch {
	case result.Success:
		sweepPolicies.WithLabelValues("triggered").Inc()
		summary.Triggered++
	case result.Skipped:
		sweepPolicies.WithLabelValues("skipped").Inc()
		summary.Skipped++
	default:
		sweepPolicies.WithLabelValues("failed").Inc()
		summary.Failed++
		summary.note("%s: %s", policy.WingetID, result.Error)
	}
}
