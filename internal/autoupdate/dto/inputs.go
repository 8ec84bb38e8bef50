package dto

import "intuneget/internal/autoupdate/models"

// ListPoliciesInput represents the input for listing policies
type ListPoliciesInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	UserID        string `query:"user_id" description:"Filter by user (admins only; defaults to the caller)"`
	TenantID      string `query:"tenant_id" description:"Filter by tenant"`
	WingetID      string `query:"winget_id" description:"Filter by winget package identifier"`
}

// CreatePolicyRequest is the body of a policy opt-in
type CreatePolicyRequest struct {
	UserID                  string                   `json:"user_id,omitempty" description:"Owner of the policy (admins only; defaults to the caller)"`
	TenantID                string                   `json:"tenant_id,omitempty" description:"Tenant of the policy (defaults to the caller's tenant)"`
	WingetID                string                   `json:"winget_id" minLength:"1" maxLength:"200" required:"true" description:"Winget package identifier"`
	PolicyType              string                   `json:"policy_type,omitempty" enum:"manual,auto_update" description:"Policy type (default auto_update)"`
	IsEnabled               *bool                    `json:"is_enabled,omitempty" description:"Whether the policy is active (default true)"`
	DeploymentConfig        *models.DeploymentConfig `json:"deployment_config,omitempty" description:"Deployment parameters replayed on every update"`
	OriginalUploadHistoryID string                   `json:"original_upload_history_id,omitempty" description:"Upload history record of the first manual deployment"`
}

// CreatePolicyInput represents the input for creating a policy
type CreatePolicyInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	Body          CreatePolicyRequest
}

// GetPolicyInput represents the input for getting a policy
type GetPolicyInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	PolicyID      string `path:"policy_id" required:"true" description:"Policy ID"`
}

// UpdatePolicyRequest holds the editable policy fields; omitted fields are unchanged
type UpdatePolicyRequest struct {
	PolicyType              *string                  `json:"policy_type,omitempty" enum:"manual,auto_update" description:"Policy type"`
	IsEnabled               *bool                    `json:"is_enabled,omitempty" description:"Enable or disable; re-enabling resets the failure counter"`
	DeploymentConfig        *models.DeploymentConfig `json:"deployment_config,omitempty" description:"Replacement deployment parameters"`
	OriginalUploadHistoryID *string                  `json:"original_upload_history_id,omitempty" description:"Upload history record of the first manual deployment"`
}

// UpdatePolicyInput represents the input for updating a policy
type UpdatePolicyInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	PolicyID      string `path:"policy_id" required:"true" description:"Policy ID"`
	Body          UpdatePolicyRequest
}

// EligiblePoliciesInput represents the input for listing eligible policies
type EligiblePoliciesInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	UserID        string `query:"user_id" description:"Restrict to one user"`
	TenantID      string `query:"tenant_id" description:"Restrict to one tenant"`
}

// TriggerRequest describes the update to deploy
type TriggerRequest struct {
	CurrentVersion     string `json:"current_version,omitempty" description:"Deployed version (defaults to the policy's last known version)"`
	LatestVersion      string `json:"latest_version" minLength:"1" required:"true" description:"Version to deploy"`
	InstallerURL       string `json:"installer_url" format:"uri" required:"true" description:"Installer download URL"`
	InstallerSHA256    string `json:"installer_sha256,omitempty" pattern:"^[A-Fa-f0-9]{64}$" description:"Installer SHA-256"`
	InstallerType      string `json:"installer_type,omitempty" description:"Installer type (msi, exe, msix...)"`
	DisplayName        string `json:"display_name,omitempty" description:"Display name override"`
	Architecture       string `json:"architecture,omitempty" description:"Installer architecture"`
	CurrentIntuneAppID string `json:"current_intune_app_id,omitempty" description:"Intune app replaced by this update"`
}

// TriggerInput represents the input for triggering an update
type TriggerInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	PolicyID      string `path:"policy_id" required:"true" description:"Policy ID"`
	Body          TriggerRequest
}

// PolicyHistoryInput represents the input for listing a policy's history
type PolicyHistoryInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	PolicyID      string `path:"policy_id" required:"true" description:"Policy ID"`
	Limit         int    `query:"limit" minimum:"1" maximum:"100" default:"20" description:"Maximum records, newest first"`
}

// MarkCompletedInput represents the packaging pipeline's success callback
type MarkCompletedInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	HistoryID     string `path:"history_id" required:"true" description:"History record ID"`
	Body          struct {
		PackagingJobID string `json:"packaging_job_id,omitempty" description:"Job that finished the update"`
	} `required:"false"`
}

// MarkFailedInput represents the packaging pipeline's failure callback
type MarkFailedInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
	HistoryID     string `path:"history_id" required:"true" description:"History record ID"`
	Body          struct {
		ErrorMessage string `json:"error_message" minLength:"1" maxLength:"2000" required:"true" description:"Failure description"`
	}
}

// RunSweepInput represents the input for an on-demand sweep
type RunSweepInput struct {
	Authorization string `header:"Authorization" description:"Bearer token for authentication"`
	Cookie        string `header:"Cookie" description:"Cookie header containing intuneget_auth_token"`
}
