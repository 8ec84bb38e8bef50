package routes

import (
	"context"
	"errors"
	"net/http"

	"intuneget/internal/autoupdate/dto"
	"intuneget/internal/autoupdate/middleware"
	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"
	"intuneget/pkg/config"
	pkgMiddleware "intuneget/pkg/middleware"

	"github.com/danielgtaylor/huma/v2"
)

var security = []map[string][]string{{"bearerAuth": {}}, {"cookieAuth": {}}}

// Routes holds the auto-update HTTP handlers
type Routes struct {
	service    *services.AutoUpdateService
	checker    *services.UpdateChecker
	middleware *middleware.AuthMiddleware
	validator  *dto.Validator
	sweep      config.SweepConfig
}

func NewRoutes(service *services.AutoUpdateService, checker *services.UpdateChecker, authMiddleware *middleware.AuthMiddleware, sweep config.SweepConfig) *Routes {
	return &Routes{
		service:    service,
		checker:    checker,
		middleware: authMiddleware,
		validator:  dto.NewValidator(),
		sweep:      sweep,
	}
}

// RegisterUnifiedRoutes registers all auto-update routes under basePath
func (r *Routes) RegisterUnifiedRoutes(api huma.API, basePath string) {
	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-get-status",
		Method:      http.MethodGet,
		Path:        basePath + "/status",
		Summary:     "Get auto-update module status",
		Description: "Returns module health, the active safety configuration and the last sweep summary",
		Tags:        []string{"Module Status"},
	}, r.status)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-list-policies",
		Method:      http.MethodGet,
		Path:        basePath + "/policies",
		Summary:     "List update policies",
		Description: "Lists the caller's policies; admins may filter by any user",
		Tags:        []string{"Auto Update / Policies"},
		Security:    security,
	}, r.listPolicies)

	huma.Register(api, huma.Operation{
		OperationID:   "autoupdate-create-policy",
		Method:        http.MethodPost,
		Path:          basePath + "/policies",
		Summary:       "Create update policy",
		Description:   "Opts an app into automatic updates",
		Tags:          []string{"Auto Update / Policies"},
		Security:      security,
		DefaultStatus: http.StatusCreated,
	}, r.createPolicy)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-eligible-policies",
		Method:      http.MethodGet,
		Path:        basePath + "/policies/eligible",
		Summary:     "List eligible policies",
		Description: "Enabled auto_update policies below the consecutive failure limit",
		Tags:        []string{"Auto Update / Policies"},
		Security:    security,
	}, r.eligiblePolicies)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-get-policy",
		Method:      http.MethodGet,
		Path:        basePath + "/policies/{policy_id}",
		Summary:     "Get update policy",
		Tags:        []string{"Auto Update / Policies"},
		Security:    security,
	}, r.getPolicy)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-update-policy",
		Method:      http.MethodPatch,
		Path:        basePath + "/policies/{policy_id}",
		Summary:     "Update update policy",
		Description: "Changes type, enablement or deployment parameters; re-enabling resets the failure counter",
		Tags:        []string{"Auto Update / Policies"},
		Security:    security,
	}, r.updatePolicy)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-trigger",
		Method:      http.MethodPost,
		Path:        basePath + "/policies/{policy_id}/trigger",
		Summary:     "Trigger update",
		Description: "Runs the safety gate and queues a packaging job for the given version",
		Tags:        []string{"Auto Update / Trigger"},
		Security:    security,
	}, r.trigger)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-policy-history",
		Method:      http.MethodGet,
		Path:        basePath + "/policies/{policy_id}/history",
		Summary:     "List policy history",
		Tags:        []string{"Auto Update / History"},
		Security:    security,
	}, r.policyHistory)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-mark-completed",
		Method:      http.MethodPost,
		Path:        basePath + "/history/{history_id}/complete",
		Summary:     "Mark update completed",
		Description: "Packaging pipeline callback; the policy is not modified",
		Tags:        []string{"Auto Update / History"},
		Security:    security,
	}, r.markCompleted)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-mark-failed",
		Method:      http.MethodPost,
		Path:        basePath + "/history/{history_id}/fail",
		Summary:     "Mark update failed",
		Description: "Packaging pipeline callback; does not count against the circuit breaker",
		Tags:        []string{"Auto Update / History"},
		Security:    security,
	}, r.markFailed)

	huma.Register(api, huma.Operation{
		OperationID: "autoupdate-run-sweep",
		Method:      http.MethodPost,
		Path:        basePath + "/sweep",
		Summary:     "Run update sweep",
		Description: "Checks every eligible policy against the winget catalog now",
		Tags:        []string{"Auto Update / Sweep"},
		Security:    security,
	}, r.runSweep)
}

func (r *Routes) status(ctx context.Context, input *struct{}) (*dto.StatusOutput, error) {
	resp := dto.StatusResponse{
		Module:       "auto-update",
		Status:       "healthy",
		SweepEnabled: r.sweep.Enabled,
		Schedule:     r.sweep.Schedule,
		Safety:       r.service.SafetyConfig(),
	}
	if r.checker != nil {
		resp.LastSweep = r.checker.LastSummary()
	}
	if err := r.service.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Message = err.Error()
	}
	return &dto.StatusOutput{Body: resp}, nil
}

func (r *Routes) listPolicies(ctx context.Context, input *dto.ListPoliciesInput) (*dto.PolicyListOutput, error) {
	user, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourcePolicies, middleware.ActionRead)
	if err != nil {
		return nil, err
	}

	filter := models.PolicyFilter{UserID: input.UserID, TenantID: input.TenantID, WingetID: input.WingetID}
	if !user.IsAdmin() {
		filter.UserID = user.UserID
	}

	policies, err := r.service.ListPolicies(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list policies", err)
	}
	return &dto.PolicyListOutput{Body: dto.PolicyListResponse{Policies: policies, Total: len(policies)}}, nil
}

func (r *Routes) createPolicy(ctx context.Context, input *dto.CreatePolicyInput) (*dto.PolicyOutput, error) {
	user, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourcePolicies, middleware.ActionWrite)
	if err != nil {
		return nil, err
	}

	body := input.Body
	policy := &models.AppUpdatePolicy{
		UserID:                  user.UserID,
		TenantID:                user.TenantID,
		WingetID:                body.WingetID,
		PolicyType:              models.PolicyType(body.PolicyType),
		IsEnabled:               true,
		DeploymentConfig:        body.DeploymentConfig,
		OriginalUploadHistoryID: body.OriginalUploadHistoryID,
	}
	if body.IsEnabled != nil {
		policy.IsEnabled = *body.IsEnabled
	}
	if body.UserID != "" || body.TenantID != "" {
		if !user.IsAdmin() && ((body.UserID != "" && body.UserID != user.UserID) || (body.TenantID != "" && body.TenantID != user.TenantID)) {
			return nil, huma.Error403Forbidden("Only admins may create policies for other users or tenants")
		}
		if body.UserID != "" {
			policy.UserID = body.UserID
		}
		if body.TenantID != "" {
			policy.TenantID = body.TenantID
		}
	}
	if policy.TenantID == "" {
		return nil, huma.Error422UnprocessableEntity("tenant_id is required")
	}

	if err := r.validator.ValidateDeploymentConfig(body.DeploymentConfig); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	created, err := r.service.CreatePolicy(ctx, policy)
	if err != nil {
		if errors.Is(err, services.ErrPolicyExists) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error500InternalServerError("Failed to create policy", err)
	}
	return &dto.PolicyOutput{Body: *created}, nil
}

func (r *Routes) eligiblePolicies(ctx context.Context, input *dto.EligiblePoliciesInput) (*dto.PolicyListOutput, error) {
	if _, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourcePolicies, middleware.ActionEligible); err != nil {
		return nil, err
	}

	policies, err := r.service.GetEligiblePolicies(ctx, input.UserID, input.TenantID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load eligible policies", err)
	}
	return &dto.PolicyListOutput{Body: dto.PolicyListResponse{Policies: policies, Total: len(policies)}}, nil
}

func (r *Routes) getPolicy(ctx context.Context, input *dto.GetPolicyInput) (*dto.PolicyOutput, error) {
	user, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourcePolicies, middleware.ActionRead)
	if err != nil {
		return nil, err
	}

	policy, err := r.loadPolicy(ctx, user, input.PolicyID)
	if err != nil {
		return nil, err
	}
	return &dto.PolicyOutput{Body: *policy}, nil
}

func (r *Routes) updatePolicy(ctx context.Context, input *dto.UpdatePolicyInput) (*dto.PolicyOutput, error) {
	user, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourcePolicies, middleware.ActionWrite)
	if err != nil {
		return nil, err
	}
	if _, err := r.loadPolicy(ctx, user, input.PolicyID); err != nil {
		return nil, err
	}

	body := input.Body
	if err := r.validator.ValidateDeploymentConfig(body.DeploymentConfig); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	patch := models.PolicyPatch{
		IsEnabled:               body.IsEnabled,
		DeploymentConfig:        body.DeploymentConfig,
		OriginalUploadHistoryID: body.OriginalUploadHistoryID,
	}
	if body.PolicyType != nil {
		policyType := models.PolicyType(*body.PolicyType)
		patch.PolicyType = &policyType
	}

	updated, err := r.service.UpdatePolicy(ctx, input.PolicyID, patch)
	if err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			return nil, huma.Error404NotFound("Policy not found")
		}
		return nil, huma.Error500InternalServerError("Failed to update policy", err)
	}
	return &dto.PolicyOutput{Body: *updated}, nil
}

func (r *Routes) trigger(ctx context.Context, input *dto.TriggerInput) (*dto.TriggerOutput, error) {
	user, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourcePolicies, middleware.ActionTrigger)
	if err != nil {
		return nil, err
	}

	policy, err := r.loadPolicy(ctx, user, input.PolicyID)
	if err != nil {
		return nil, err
	}

	body := input.Body
	result := r.service.TriggerAutoUpdate(ctx, policy, models.UpdateInfo{
		WingetID:           policy.WingetID,
		CurrentVersion:     body.CurrentVersion,
		LatestVersion:      body.LatestVersion,
		InstallerURL:       body.InstallerURL,
		InstallerSHA256:    body.InstallerSHA256,
		InstallerType:      body.InstallerType,
		DisplayName:        body.DisplayName,
		Architecture:       body.Architecture,
		CurrentIntuneAppID: body.CurrentIntuneAppID,
	})

	status := http.StatusOK
	switch {
	case result.Success, result.Skipped:
	case result.BreakerCounted:
		status = http.StatusInternalServerError
	default:
		status = http.StatusUnprocessableEntity
	}
	return &dto.TriggerOutput{Status: status, Body: *result}, nil
}

func (r *Routes) policyHistory(ctx context.Context, input *dto.PolicyHistoryInput) (*dto.HistoryListOutput, error) {
	user, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourceHistory, middleware.ActionRead)
	if err != nil {
		return nil, err
	}
	if _, err := r.loadPolicy(ctx, user, input.PolicyID); err != nil {
		return nil, err
	}

	records, err := r.service.ListHistory(ctx, input.PolicyID, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list history", err)
	}
	return &dto.HistoryListOutput{Body: dto.HistoryListResponse{History: records, Total: len(records)}}, nil
}

func (r *Routes) markCompleted(ctx context.Context, input *dto.MarkCompletedInput) (*dto.HistoryOutput, error) {
	if _, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourceHistory, middleware.ActionWrite); err != nil {
		return nil, err
	}
	if err := r.service.MarkUpdateCompleted(ctx, input.HistoryID, input.Body.PackagingJobID); err != nil {
		return nil, historyError(err)
	}
	return r.historyOutput(ctx, input.HistoryID)
}

func (r *Routes) markFailed(ctx context.Context, input *dto.MarkFailedInput) (*dto.HistoryOutput, error) {
	if _, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourceHistory, middleware.ActionWrite); err != nil {
		return nil, err
	}
	if err := r.service.MarkUpdateFailed(ctx, input.HistoryID, input.Body.ErrorMessage); err != nil {
		return nil, historyError(err)
	}
	return r.historyOutput(ctx, input.HistoryID)
}

func (r *Routes) runSweep(ctx context.Context, input *dto.RunSweepInput) (*dto.SweepOutput, error) {
	if _, err := r.middleware.RequirePermission(ctx, input.Authorization, input.Cookie, middleware.ResourceSweep, middleware.ActionRun); err != nil {
		return nil, err
	}
	if r.checker == nil {
		return nil, huma.Error503ServiceUnavailable("Update checker is not configured")
	}

	summary, err := r.checker.RunSweep(ctx)
	if err != nil {
		if errors.Is(err, services.ErrSweepInProgress) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error500InternalServerError("Sweep failed", err)
	}
	return &dto.SweepOutput{Body: *summary}, nil
}

func (r *Routes) loadPolicy(ctx context.Context, user *pkgMiddleware.AuthenticatedUser, id string) (*models.AppUpdatePolicy, error) {
	policy, err := r.service.GetPolicy(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrPolicyNotFound) {
			return nil, huma.Error404NotFound("Policy not found")
		}
		return nil, huma.Error500InternalServerError("Failed to load policy", err)
	}
	if err := middleware.RequirePolicyAccess(user, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (r *Routes) historyOutput(ctx context.Context, id string) (*dto.HistoryOutput, error) {
	history, err := r.service.GetHistory(ctx, id)
	if err != nil {
		return nil, historyError(err)
	}
	return &dto.HistoryOutput{Body: *history}, nil
}

func historyError(err error) error {
	switch {
	case errors.Is(err, services.ErrHistoryNotFound):
		return huma.Error404NotFound("History record not found")
	case errors.Is(err, services.ErrInvalidTransition):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError("Failed to update history", err)
	}
}
