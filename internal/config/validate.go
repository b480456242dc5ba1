package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"relaybot/internal/task/scheduler"
	"relaybot/pkg/logx"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json keys, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags, durations, the checkpoint schedule and the
// log level. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			_, path, _ := strings.Cut(fe.Namespace(), ".")
			errs = append(errs, fmt.Errorf("%s: failed %q", path, fe.Tag()))
		}
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"stores.checkpoint_timeout", cfg.Stores.CheckpointTimeout},
		{"dispatch.timeout", cfg.Dispatch.Timeout},
		{"audit.busy_timeout", cfg.Audit.BusyTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if s := strings.TrimSpace(cfg.Stores.Checkpoint); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			errs = append(errs, fmt.Errorf("stores.checkpoint: %w", err))
		}
	}
	if lvl := cfg.Logging.Level; lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if cfg.Audit.Driver != "" && cfg.Audit.Driver != "none" && strings.TrimSpace(cfg.Audit.Path) == "" {
		errs = append(errs, errors.New("audit.path: required when audit is enabled"))
	}
	return errors.Join(errs...)
}
