package dto

import (
	"errors"
	"fmt"
	"slices"

	"intuneget/internal/autoupdate/models"

	"github.com/go-playground/validator/v10"
)

var (
	validIntents         = []string{models.IntentRequired, models.IntentAvailable, models.IntentUninstall}
	validAssignmentTypes = []string{models.AssignmentTypeGroup, models.AssignmentTypeAllUsers, models.AssignmentTypeAllDevices}
)

// RegisterCustomValidators registers custom validation rules for auto-update DTOs
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("intent", validateIntent)
	validate.RegisterValidation("assignment_type", validateAssignmentType)
}

func validateIntent(fl validator.FieldLevel) bool {
	return slices.Contains(validIntents, fl.Field().String())
}

func validateAssignmentType(fl validator.FieldLevel) bool {
	return slices.Contains(validAssignmentTypes, fl.Field().String())
}

// deploymentRules mirrors models.DeploymentConfig with the constraints a replayable config must meet
type deploymentRules struct {
	Version          string           `validate:"required"`
	InstallCommand   string           `validate:"required"`
	UninstallCommand string           `validate:"required"`
	Assignments      []assignmentRule `validate:"dive"`
	AssignedGroups   []groupRule      `validate:"dive"`
}

type assignmentRule struct {
	Type    string `validate:"assignment_type"`
	GroupID string `validate:"required_if=Type group"`
	Intent  string `validate:"intent"`
}

type groupRule struct {
	GroupID        string `validate:"required"`
	AssignmentType string `validate:"omitempty,intent"`
}

// Validator checks request payloads beyond what the OpenAPI schema expresses
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	RegisterCustomValidators(v)
	return &Validator{validate: v}
}

// ValidateDeploymentConfig reports the first problem that would make a config unusable for replay
func (v *Validator) ValidateDeploymentConfig(cfg *models.DeploymentConfig) error {
	if cfg == nil {
		return nil
	}

	rules := deploymentRules{
		Version:          cfg.Version,
		InstallCommand:   cfg.InstallCommand,
		UninstallCommand: cfg.UninstallCommand,
	}
	for _, a := range cfg.Assignments {
		rules.Assignments = append(rules.Assignments, assignmentRule{Type: a.Type, GroupID: a.GroupID, Intent: a.Intent})
	}
	for _, g := range cfg.AssignedGroups {
		rules.AssignedGroups = append(rules.AssignedGroups, groupRule{GroupID: g.GroupID, AssignmentType: g.AssignmentType})
	}

	if err := v.validate.Struct(rules); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid deployment_config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid deployment_config: %w", err)
	}
	return nil
}
