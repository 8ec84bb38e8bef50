package dto

import (
	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"
	"intuneget/pkg/config"
)

// StatusOutput represents the module status response
type StatusOutput struct {
	Body StatusResponse
}

// StatusResponse describes the module and its active safety rails
type StatusResponse struct {
	Module       string                 `json:"module" description:"Module name"`
	Status       string                 `json:"status" enum:"healthy,unhealthy" description:"Module health"`
	Message      string                 `json:"message,omitempty" description:"Error detail when unhealthy"`
	SweepEnabled bool                   `json:"sweep_enabled" description:"Whether scheduled sweeps run"`
	Schedule     string                 `json:"schedule" description:"Sweep cron schedule (with seconds)"`
	Safety       config.SafetyConfig    `json:"safety" description:"Active safety configuration"`
	LastSweep    *services.SweepSummary `json:"last_sweep,omitempty" description:"Most recent sweep summary on this instance"`
}

// PolicyOutput represents a single policy response
type PolicyOutput struct {
	Body models.AppUpdatePolicy
}

// PolicyListOutput represents a policy listing response
type PolicyListOutput struct {
	Body PolicyListResponse
}

type PolicyListResponse struct {
	Policies []models.AppUpdatePolicy `json:"policies" description:"Policies"`
	Total    int                      `json:"total" description:"Number of policies returned"`
}

// TriggerOutput carries the trigger result. Status is 200 for success and skips,
// 422 for configuration errors and 500 for failures counted by the circuit breaker.
type TriggerOutput struct {
	Status int
	Body   services.TriggerResult
}

// HistoryListOutput represents a history listing response
type HistoryListOutput struct {
	Body HistoryListResponse
}

type HistoryListResponse struct {
	History []models.AutoUpdateHistory `json:"history" description:"History records, newest first"`
	Total   int                        `json:"total" description:"Number of records returned"`
}

// HistoryOutput represents a single history record response
type HistoryOutput struct {
	Body models.AutoUpdateHistory
}

// SweepOutput represents an on-demand sweep response
type SweepOutput struct {
	Body services.SweepSummary
}
