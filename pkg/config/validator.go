package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var techniqueSlugs = map[string]bool{"directo": true, "indirecto": true, "control_natural": true}

// Validator validates configuration
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateServer validates the backend service configuration
func (v *Validator) ValidateServer(cfg *ServerConfig) error {
	v.errors = nil

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		v.addError("server.port", "port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "mysql":
		if cfg.Database.Host == "" {
			v.addError("database.host", "host is required for mysql")
		}
		if cfg.Database.Name == "" {
			v.addError("database.name", "database name is required for mysql")
		}
	case "sqlite":
		if cfg.Database.Path == "" {
			v.addError("database.path", "path is required for sqlite")
		}
	default:
		v.addError("database.driver", fmt.Sprintf("unsupported driver %q (use mysql or sqlite)", cfg.Database.Driver))
	}

	if len(cfg.Auth.JWTSecret) < 16 {
		v.addError("auth.jwt_secret", "secret must be at least 16 characters")
	}

	v.validateLogging(cfg.Logging)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// ValidateClient validates the CLI configuration
func (v *Validator) ValidateClient(cfg *ClientConfig) error {
	v.errors = nil

	if cfg.Backend.URL == "" {
		v.addError("backend.url", "backend URL is required")
	} else if u, err := url.Parse(cfg.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		v.addError("backend.url", "invalid URL format")
	}

	if cfg.Catalogs.PageSize <= 0 {
		v.addError("catalogs.page_size", "page size must be positive")
	}

	for id, slug := range cfg.Techniques.Mapping {
		if !techniqueSlugs[slug] {
			v.addError("techniques.mapping."+id, fmt.Sprintf("unknown slug %q", slug))
		}
	}

	v.validateLogging(cfg.Logging)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateLogging(cfg LoggingConfig) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		v.addError("logging.level", fmt.Sprintf("invalid level %q", cfg.Level))
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}
