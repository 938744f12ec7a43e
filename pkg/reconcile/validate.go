package reconcile

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"photobackup/pkg/shared"
	"photobackup/pkg/store"
)

// ValidationError lists every failed precondition, not just the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// ConfigLoader is the read side of the configuration store.
type ConfigLoader interface {
	Load() (*shared.Config, error)
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate loads the configuration and checks that a run can start: the
// config exists, required fields are set, fileTypes names at least one
// extension and the primary source and target directories exist.
func (e *Engine) Validate(loader ConfigLoader) (*shared.Config, error) {
	cfg, err := loader.Load()
	if err != nil {
		if errors.Is(err, store.ErrConfigAbsent) {
			return nil, &ValidationError{Problems: []string{"No config found!"}}
		}
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("Config could not be read: %v", err)}}
	}

	var problems []string

	if err := configValidator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if cfg.FileTypes != "" && len(cfg.FileTypeFilter()) == 0 {
		problems = append(problems, "fileTypes lists no extensions")
	}

	if cfg.Source != "" && !e.isDir(cfg.Source) {
		problems = append(problems, "Source dir not found")
	}
	if cfg.Target != "" && !e.isDir(cfg.Target) {
		problems = append(problems, "Target dir not found")
	}

	if len(problems) > 0 {
		return cfg, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

func (e *Engine) isDir(path string) bool {
	ok, err := afero.IsDir(e.fs, path)
	return err == nil && ok
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %q check", field, fe.Tag())
	}
}
