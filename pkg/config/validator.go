package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var logLevels = map[string]struct{}{
	"debug":    {},
	"info":     {},
	"warn":     {},
	"error":    {},
	"disabled": {},
}

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("log_level", validateLogLevel)
}

// validateLogLevel accepts the levels understood by logger.ParseLevel, case-insensitively.
func validateLogLevel(fl validator.FieldLevel) bool {
	_, ok := logLevels[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
	return ok
}
