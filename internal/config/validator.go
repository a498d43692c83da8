package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

// RegisterCustomValidators registers hookchain-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// hook_method: one of the six recognized methods
	if err := v.RegisterValidation("hook_method", validateHookMethod); err != nil {
		return fmt.Errorf("failed to register hook_method validator: %w", err)
	}
	// hook_method_or_all: a recognized method or "all"
	if err := v.RegisterValidation("hook_method_or_all", validateHookMethodOrAll); err != nil {
		return fmt.Errorf("failed to register hook_method_or_all validator: %w", err)
	}
	return nil
}

func validateHookMethod(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	for _, m := range hook.AllMethods() {
		if string(m) == name {
			return true
		}
	}
	return false
}

func validateHookMethodOrAll(fl validator.FieldLevel) bool {
	return fl.Field().String() == hook.MethodAll || validateHookMethod(fl)
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: rules reference declared phases, methods and services
	if err := c.validateHookRules(); err != nil {
		return err
	}

	return nil
}

// validateHookRules checks every rule against the declared phases, methods
// and services, and checks action-specific fields.
func (c *Config) validateHookRules() error {
	phases := toSet(c.Phases)
	methods := toSet(c.Methods)
	services := toSet(c.Services)
	names := make(map[string]bool, len(c.Hooks))

	for i, rule := range c.Hooks {
		if names[rule.Name] {
			return fmt.Errorf("hooks[%d]: duplicate name: %s", i, rule.Name)
		}
		names[rule.Name] = true

		if !phases[rule.Phase] {
			return fmt.Errorf("hooks[%d] (%s): phase %q is not declared in phases", i, rule.Name, rule.Phase)
		}
		for _, m := range rule.Methods {
			if m != hook.MethodAll && !methods[m] {
				return fmt.Errorf("hooks[%d] (%s): method %q is not declared in methods", i, rule.Name, m)
			}
		}

		switch rule.Scope {
		case ScopeService:
			if rule.Service == "" {
				return fmt.Errorf("hooks[%d] (%s): service is required when scope is service", i, rule.Name)
			}
			if !services[rule.Service] {
				return fmt.Errorf("hooks[%d] (%s): references unknown service: %s", i, rule.Name, rule.Service)
			}
		default:
			if rule.Service != "" {
				return fmt.Errorf("hooks[%d] (%s): service is only valid when scope is service", i, rule.Name)
			}
		}

		switch rule.Action {
		case ActionSetParams, ActionRequireParams:
			if len(rule.Params) == 0 {
				return fmt.Errorf("hooks[%d] (%s): params are required for %s", i, rule.Name, rule.Action)
			}
		case ActionSetResult:
			if rule.Result == nil {
				return fmt.Errorf("hooks[%d] (%s): result is required for %s", i, rule.Name, rule.Action)
			}
		}
	}
	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "alphanum":
		return fmt.Sprintf("%s must be alphanumeric", field)
	case "hook_method":
		return fmt.Sprintf("%s must be one of: %s", field, methodList())
	case "hook_method_or_all":
		return fmt.Sprintf("%s must be %q or one of: %s", field, hook.MethodAll, methodList())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

func methodList() string {
	names := make([]string, 0, len(hook.AllMethods()))
	for _, m := range hook.AllMethods() {
		names = append(names, string(m))
	}
	return strings.Join(names, " ")
}
