package services

import (
	"context"
	"fmt"
	"log/slog"

	"intuneget/internal/autoupdate/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const reasonInFlight = "update already in flight for this policy"

// TriggerResult is the outcome of one trigger attempt.
// Success, Skipped and a non-empty Error are mutually exclusive.
type TriggerResult struct {
	Success           bool   `json:"success"`
	Skipped           bool   `json:"skipped,omitempty"`
	PackagingJobID    string `json:"packaging_job_id,omitempty"`
	HistoryID         string `json:"history_id,omitempty"`
	Error             string `json:"error,omitempty"`
	SkipReason        string `json:"skip_reason,omitempty"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
	// BreakerCounted is set when the failure was added to the policy's failure counter
	BreakerCounted bool `json:"breaker_counted,omitempty"`
}

// TriggerAutoUpdate runs the safety gate and, when allowed, records a pending history
// row, queues a packaging job and updates the policy bookkeeping. Unexpected failures
// after the gate started are counted against the policy's circuit breaker. Rows
// written before a failure are kept.
func (s *AutoUpdateService) TriggerAutoUpdate(ctx context.Context, policy *models.AppUpdatePolicy, info models.UpdateInfo) *TriggerResult {
	ctx, span := s.tracer.Start(ctx, "autoupdate.trigger", trace.WithAttributes(
		attribute.String("policy.id", policy.ID),
		attribute.String("winget.id", policy.WingetID),
		attribute.String("version.to", info.LatestVersion),
	))
	defer span.End()

	gate, err := s.CheckSafety(ctx, policy)
	if err != nil {
		return s.fail(ctx, span, policy, fmt.Errorf("safety check failed: %w", err))
	}

	if !gate.Allowed {
		if gate.Skipped {
			triggerTotal.WithLabelValues("skipped").Inc()
			slog.InfoContext(ctx, "Auto-update skipped",
				slog.String("policy_id", policy.ID),
				slog.String("check", gate.Check),
				slog.String("reason", gate.Reason),
			)
			return &TriggerResult{Skipped: true, SkipReason: gate.Reason, RetryAfterMinutes: gate.RetryAfterMinutes}
		}
		triggerTotal.WithLabelValues("config_error").Inc()
		slog.ErrorContext(ctx, "Auto-update blocked by configuration",
			slog.String("policy_id", policy.ID),
			slog.String("check", gate.Check),
			slog.String("reason", gate.Reason),
		)
		return &TriggerResult{Error: gate.Reason}
	}

	now := s.now()
	claimed, err := s.store.ClaimPolicy(ctx, policy.ID, policy.ConsecutiveFailures, now, now.Add(s.safety.ClaimLease()))
	if err != nil {
		return s.fail(ctx, span, policy, fmt.Errorf("failed to claim policy: %w", err))
	}
	if !claimed {
		triggerTotal.WithLabelValues("skipped").Inc()
		slog.InfoContext(ctx, "Auto-update skipped", slog.String("policy_id", policy.ID), slog.String("reason", reasonInFlight))
		return &TriggerResult{Skipped: true, SkipReason: reasonInFlight}
	}

	fromVersion := info.CurrentVersion
	if fromVersion == "" {
		fromVersion = policy.CurrentVersion()
	}

	history := &models.AutoUpdateHistory{
		ID:          s.newID(),
		PolicyID:    policy.ID,
		UserID:      policy.UserID,
		TenantID:    policy.TenantID,
		FromVersion: fromVersion,
		ToVersion:   info.LatestVersion,
		UpdateType:  ClassifyUpdateType(fromVersion, info.LatestVersion),
		Status:      models.HistoryStatusPending,
		TriggeredAt: now,
	}
	if err := s.store.InsertHistory(ctx, history); err != nil {
		return s.fail(ctx, span, policy, fmt.Errorf("failed to create history record: %w", err))
	}

	job := BuildPackagingJob(policy, info, s.newID(), history.ID, now)
	if err := s.store.InsertPackagingJob(ctx, job); err != nil {
		return s.fail(ctx, span, policy, fmt.Errorf("failed to queue packaging job: %w", err))
	}

	if err := s.store.AttachPackagingJob(ctx, history.ID, job.ID); err != nil {
		return s.fail(ctx, span, policy, fmt.Errorf("failed to link packaging job to history: %w", err))
	}

	if err := s.store.RecordPolicySuccess(ctx, policy.ID, info.LatestVersion, now); err != nil {
		return s.fail(ctx, span, policy, fmt.Errorf("failed to update policy after trigger: %w", err))
	}

	triggerTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("history.id", history.ID), attribute.String("job.id", job.ID))
	slog.InfoContext(ctx, "Auto-update triggered",
		slog.String("policy_id", policy.ID),
		slog.String("winget_id", policy.WingetID),
		slog.String("from_version", fromVersion),
		slog.String("to_version", info.LatestVersion),
		slog.String("update_type", string(history.UpdateType)),
		slog.String("history_id", history.ID),
		slog.String("packaging_job_id", job.ID),
	)

	return &TriggerResult{Success: true, PackagingJobID: job.ID, HistoryID: history.ID}
}

func (s *AutoUpdateService) fail(ctx context.Context, span trace.Span, policy *models.AppUpdatePolicy, cause error) *TriggerResult {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	triggerTotal.WithLabelValues("failed").Inc()

	slog.ErrorContext(ctx, "Auto-update trigger failed",
		slog.String("policy_id", policy.ID),
		slog.String("error", cause.Error()),
	)

	result := &TriggerResult{Error: cause.Error()}
	if err := s.IncrementFailureCount(ctx, policy.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to record auto-update failure",
			slog.String("policy_id", policy.ID),
			slog.String("error", err.Error()),
		)
		return result
	}
	result.BreakerCounted = true
	return result
}

// IncrementFailureCount adds one failure to the policy and disables it once the
// configured maximum is reached
func (s *AutoUpdateService) IncrementFailureCount(ctx context.Context, policyID string) error {
	count, err := s.store.IncrementPolicyFailures(ctx, policyID, s.now())
	if err != nil {
		return fmt.Errorf("failed to increment failure count: %w", err)
	}

	if count < s.safety.MaxConsecutiveFailures {
		return nil
	}

	if err := s.store.DisablePolicy(ctx, policyID, s.now()); err != nil {
		return fmt.Errorf("failed to disable policy after %d failures: %w", count, err)
	}

	circuitBreakerTrips.Inc()
	slog.WarnContext(ctx, "Auto-update policy disabled after consecutive failures",
		slog.String("policy_id", policyID),
		slog.Int("consecutive_failures", count),
		slog.Int("max_consecutive_failures", s.safety.MaxConsecutiveFailures),
	)
	return nil
}

// MarkUpdateCompleted finishes a history record successfully. The policy is not modified.
func (s *AutoUpdateService) MarkUpdateCompleted(ctx context.Context, historyID, packagingJobID string) error {
	history, err := s.store.GetHistory(ctx, historyID)
	if err != nil {
		return err
	}
	if packagingJobID != "" && history.PackagingJobID != "" && history.PackagingJobID != packagingJobID {
		slog.WarnContext(ctx, "Completion reported by a different packaging job",
			slog.String("history_id", historyID),
			slog.String("recorded_job_id", history.PackagingJobID),
			slog.String("reported_job_id", packagingJobID),
		)
	}

	return s.finish(ctx, historyID, models.HistoryTransition{
		Status:      models.HistoryStatusCompleted,
		CompletedAt: s.now(),
	})
}

// MarkUpdateFailed finishes a history record with an error message. It does not feed
// the policy's circuit breaker.
func (s *AutoUpdateService) MarkUpdateFailed(ctx context.Context, historyID, errorMessage string) error {
	return s.finish(ctx, historyID, models.HistoryTransition{
		Status:       models.HistoryStatusFailed,
		CompletedAt:  s.now(),
		ErrorMessage: errorMessage,
	})
}

func (s *AutoUpdateService) finish(ctx context.Context, historyID string, transition models.HistoryTransition) error {
	if err := s.store.TransitionHistory(ctx, historyID, transition); err != nil {
		return err
	}

	historyTransitions.WithLabelValues(string(transition.Status)).Inc()
	slog.InfoContext(ctx, "Auto-update history finished",
		slog.String("history_id", historyID),
		slog.String("status", string(transition.Status)),
	)
	return nil
}
