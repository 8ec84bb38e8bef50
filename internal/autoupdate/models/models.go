package models

import "time"

// Collection names
const (
	PoliciesCollection      = "app_update_policies"
	HistoryCollection       = "auto_update_history"
	PackagingJobsCollection = "packaging_jobs"
	TenantConsentCollection = "tenant_consent"
)

// PolicyType distinguishes policies the service may act on
type PolicyType string

const (
	PolicyTypeManual     PolicyType = "manual"
	PolicyTypeAutoUpdate PolicyType = "auto_update"
)

// UpdateType classifies a version delta
type UpdateType string

const (
	UpdateTypePatch UpdateType = "patch"
	UpdateTypeMinor UpdateType = "minor"
	UpdateTypeMajor UpdateType = "major"
)

// HistoryStatus is the lifecycle state of one update attempt
type HistoryStatus string

const (
	HistoryStatusPending   HistoryStatus = "pending"
	HistoryStatusPackaging HistoryStatus = "packaging"
	HistoryStatusCompleted HistoryStatus = "completed"
	HistoryStatusFailed    HistoryStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s HistoryStatus) IsTerminal() bool {
	return s == HistoryStatusCompleted || s == HistoryStatusFailed
}

// PackagingJobStatusQueued is the only job status this service writes
const PackagingJobStatusQueued = "queued"

// Assignment intents and target types
const (
	AssignmentTypeGroup      = "group"
	AssignmentTypeAllUsers   = "all_users"
	AssignmentTypeAllDevices = "all_devices"

	IntentRequired  = "required"
	IntentAvailable = "available"
	IntentUninstall = "uninstall"
)

// AppUpdatePolicy allows the service to redeploy newer versions of one app for one user
type AppUpdatePolicy struct {
	ID                      string            `bson:"_id" json:"id"`
	UserID                  string            `bson:"user_id" json:"user_id"`
	TenantID                string            `bson:"tenant_id" json:"tenant_id"`
	WingetID                string            `bson:"winget_id" json:"winget_id"`
	PolicyType              PolicyType        `bson:"policy_type" json:"policy_type"`
	IsEnabled               bool              `bson:"is_enabled" json:"is_enabled"`
	DeploymentConfig        *DeploymentConfig `bson:"deployment_config,omitempty" json:"deployment_config,omitempty"`
	OriginalUploadHistoryID string            `bson:"original_upload_history_id,omitempty" json:"original_upload_history_id,omitempty"`
	ConsecutiveFailures     int               `bson:"consecutive_failures" json:"consecutive_failures"`
	LastAutoUpdateAt        *time.Time        `bson:"last_auto_update_at,omitempty" json:"last_auto_update_at,omitempty"`
	LastAutoUpdateVersion   string            `bson:"last_auto_update_version,omitempty" json:"last_auto_update_version,omitempty"`
	InFlightUntil           *time.Time        `bson:"in_flight_until,omitempty" json:"in_flight_until,omitempty"`
	CreatedAt               time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time         `bson:"updated_at" json:"updated_at"`
}

// CurrentVersion is the version last deployed for this policy
func (p *AppUpdatePolicy) CurrentVersion() string {
	if p.LastAutoUpdateVersion != "" {
		return p.LastAutoUpdateVersion
	}
	if p.DeploymentConfig != nil {
		return p.DeploymentConfig.Version
	}
	return ""
}

// DeploymentConfig is the last-known-good set of deployment parameters replayed on update
type DeploymentConfig struct {
	DisplayName         string               `bson:"display_name" json:"display_name"`
	Publisher           string               `bson:"publisher,omitempty" json:"publisher,omitempty"`
	Description         string               `bson:"description,omitempty" json:"description,omitempty"`
	Version             string               `bson:"version" json:"version"`
	Architecture        string               `bson:"architecture,omitempty" json:"architecture,omitempty"`
	InstallerType       string               `bson:"installer_type,omitempty" json:"installer_type,omitempty"`
	InstallCommand      string               `bson:"install_command" json:"install_command"`
	UninstallCommand    string               `bson:"uninstall_command" json:"uninstall_command"`
	InstallScope        string               `bson:"install_scope,omitempty" json:"install_scope,omitempty"`
	DetectionRules      []DetectionRule      `bson:"detection_rules,omitempty" json:"detection_rules,omitempty"`
	Assignments         []Assignment         `bson:"assignments,omitempty" json:"assignments,omitempty"`
	AssignedGroups      []AssignedGroup      `bson:"assigned_groups,omitempty" json:"assigned_groups,omitempty"`
	AssignmentMigration *AssignmentMigration `bson:"assignment_migration,omitempty" json:"assignment_migration,omitempty"`
	IntuneAppID         string               `bson:"intune_app_id,omitempty" json:"intune_app_id,omitempty"`
}

// DetectionRule tells Intune how to detect the installed app
type DetectionRule struct {
	Type          string `bson:"type" json:"type"`
	Path          string `bson:"path,omitempty" json:"path,omitempty"`
	FileOrFolder  string `bson:"file_or_folder,omitempty" json:"file_or_folder,omitempty"`
	DetectionType string `bson:"detection_type,omitempty" json:"detection_type,omitempty"`
	Operator      string `bson:"operator,omitempty" json:"operator,omitempty"`
	Value         string `bson:"value,omitempty" json:"value,omitempty"`
	KeyPath       string `bson:"key_path,omitempty" json:"key_path,omitempty"`
	ValueName     string `bson:"value_name,omitempty" json:"value_name,omitempty"`
	ProductCode   string `bson:"product_code,omitempty" json:"product_code,omitempty"`
}

// Assignment is an explicit Intune assignment target
type Assignment struct {
	Type       string `bson:"type" json:"type"`
	GroupID    string `bson:"group_id,omitempty" json:"group_id,omitempty"`
	GroupName  string `bson:"group_name,omitempty" json:"group_name,omitempty"`
	Intent     string `bson:"intent" json:"intent"`
	FilterID   string `bson:"filter_id,omitempty" json:"filter_id,omitempty"`
	FilterType string `bson:"filter_type,omitempty" json:"filter_type,omitempty"`
}

// AssignedGroup is the older group-only assignment shape
type AssignedGroup struct {
	GroupID        string `bson:"group_id" json:"group_id"`
	GroupName      string `bson:"group_name" json:"group_name,omitempty"`
	AssignmentType string `bson:"assignment_type" json:"assignment_type,omitempty"`
}

// AssignmentMigration controls what happens to the previous Intune app's assignments
type AssignmentMigration struct {
	CopyFromPrevious   bool `bson:"copy_from_previous" json:"copy_from_previous"`
	RemoveFromPrevious bool `bson:"remove_from_previous" json:"remove_from_previous"`
}

// AutoUpdateHistory records one triggered update attempt
type AutoUpdateHistory struct {
	ID             string        `bson:"_id" json:"id"`
	PolicyID       string        `bson:"policy_id" json:"policy_id"`
	UserID         string        `bson:"user_id" json:"user_id"`
	TenantID       string        `bson:"tenant_id" json:"tenant_id"`
	FromVersion    string        `bson:"from_version" json:"from_version"`
	ToVersion      string        `bson:"to_version" json:"to_version"`
	UpdateType     UpdateType    `bson:"update_type" json:"update_type"`
	Status         HistoryStatus `bson:"status" json:"status"`
	PackagingJobID string        `bson:"packaging_job_id,omitempty" json:"packaging_job_id,omitempty"`
	TriggeredAt    time.Time     `bson:"triggered_at" json:"triggered_at"`
	CompletedAt    *time.Time    `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	ErrorMessage   string        `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

// PackagingJob is the unit of work handed to the packaging pipeline
type PackagingJob struct {
	ID                 string          `bson:"_id" json:"id"`
	UserID             string          `bson:"user_id" json:"user_id"`
	TenantID           string          `bson:"tenant_id" json:"tenant_id"`
	WingetID           string          `bson:"winget_id" json:"winget_id"`
	Version            string          `bson:"version" json:"version"`
	DisplayName        string          `bson:"display_name" json:"display_name"`
	Publisher          string          `bson:"publisher,omitempty" json:"publisher,omitempty"`
	Architecture       string          `bson:"architecture,omitempty" json:"architecture,omitempty"`
	InstallerType      string          `bson:"installer_type" json:"installer_type"`
	InstallerURL       string          `bson:"installer_url" json:"installer_url"`
	InstallerSHA256    string          `bson:"installer_sha256" json:"installer_sha256"`
	InstallCommand     string          `bson:"install_command" json:"install_command"`
	UninstallCommand   string          `bson:"uninstall_command" json:"uninstall_command"`
	InstallScope       string          `bson:"install_scope,omitempty" json:"install_scope,omitempty"`
	DetectionRules     []DetectionRule `bson:"detection_rules,omitempty" json:"detection_rules,omitempty"`
	PackageConfig      PackageConfig   `bson:"package_config" json:"package_config"`
	Status             string          `bson:"status" json:"status"`
	IsAutoUpdate       bool            `bson:"is_auto_update" json:"is_auto_update"`
	AutoUpdatePolicyID string          `bson:"auto_update_policy_id" json:"auto_update_policy_id"`
	CreatedAt          time.Time       `bson:"created_at" json:"created_at"`
}

// PackageConfig carries assignment targets and back-references to the pipeline
type PackageConfig struct {
	Assignments         []Assignment        `bson:"assignments" json:"assignments"`
	AssignmentMigration AssignmentMigration `bson:"assignment_migration" json:"assignment_migration"`
	AutoUpdatePolicyID  string              `bson:"auto_update_policy_id" json:"auto_update_policy_id"`
	AutoUpdateHistoryID string              `bson:"auto_update_history_id" json:"auto_update_history_id"`
	ReplacesIntuneAppID string              `bson:"replaces_intune_app_id,omitempty" json:"replaces_intune_app_id,omitempty"`
}

// TenantConsent is the admin consent record of a tenant, maintained elsewhere
type TenantConsent struct {
	TenantID    string     `bson:"tenant_id" json:"tenant_id"`
	IsActive    bool       `bson:"is_active" json:"is_active"`
	ConsentedAt *time.Time `bson:"consented_at,omitempty" json:"consented_at,omitempty"`
	ConsentedBy string     `bson:"consented_by,omitempty" json:"consented_by,omitempty"`
}

// UpdateInfo describes a candidate update for one policy
type UpdateInfo struct {
	WingetID           string `json:"winget_id"`
	CurrentVersion     string `json:"current_version"`
	LatestVersion      string `json:"latest_version"`
	InstallerURL       string `json:"installer_url"`
	InstallerSHA256    string `json:"installer_sha256"`
	InstallerType      string `json:"installer_type"`
	DisplayName        string `json:"display_name,omitempty"`
	Architecture       string `json:"architecture,omitempty"`
	CurrentIntuneAppID string `json:"current_intune_app_id,omitempty"`
}

// PolicyFilter narrows policy listings; empty fields match everything
type PolicyFilter struct {
	UserID   string
	TenantID string
	WingetID string
}

// PolicyPatch holds the operator-editable policy fields; nil fields are left unchanged
type PolicyPatch struct {
	PolicyType              *PolicyType
	IsEnabled               *bool
	DeploymentConfig        *DeploymentConfig
	OriginalUploadHistoryID *string
	ResetFailures           bool
}

// HistoryTransition moves a history row to a terminal state
type HistoryTransition struct {
	Status       HistoryStatus
	CompletedAt  time.Time
	ErrorMessage string
}
