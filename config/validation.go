package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg and returns the problems found joined into one error.
// Each problem is a *ConfigError; use FieldErrors or errors.As to inspect them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, toConfigError(fe))
		}
	}

	if err := cfg.Observability.Validate(); err != nil {
		errs = append(errs, NewInvalidFieldError("observability", err.Error(), nil))
	}

	return errors.Join(errs...)
}

func toConfigError(fe validator.FieldError) *ConfigError {
	// Namespace is "Config.retry.max_attempts"; drop the struct name.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return NewMissingFieldError(field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fmt.Sprint(fe.Value())), strings.Fields(fe.Param()))
	case "url":
		return NewInvalidFieldError(field, "must be an absolute URL", nil)
	default:
		return NewInvalidFieldError(field, fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param()), nil)
	}
}
