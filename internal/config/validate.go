package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	if err := structValidator.Struct(cfg); err != nil {
		return nil, describeValidationError(err)
	}

	warnings := make([]Warning, 0)

	switch cfg.Transcription.Backend {
	case "hosted":
		if strings.TrimSpace(cfg.Transcription.Hosted.URL) == "" {
			return nil, errors.New("transcription.hosted.url must not be empty when transcription.backend=hosted")
		}
		if strings.TrimSpace(cfg.Transcription.Hosted.APIKey) == "" {
			warnings = append(warnings, Warning{
				Message: "transcription.hosted.api_key is empty; requests will be sent without authorization",
			})
		}
	case "local":
		if strings.TrimSpace(cfg.Transcription.Local.Model) == "" {
			return nil, errors.New("transcription.local.model must not be empty when transcription.backend=local")
		}
		argv, err := cfg.Transcription.Local.ServerArgv()
		if err != nil {
			return nil, fmt.Errorf("transcription.local.server_cmd: %w", err)
		}
		if len(argv) == 0 {
			return nil, errors.New("transcription.local.server_cmd must not be empty when transcription.backend=local")
		}
	}

	if cfg.Recording.Mode.UsesVoiceActivity() && cfg.VAD.SilenceMS < 300 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("vad.silence_ms=%d is short; recordings may end between words", cfg.VAD.SilenceMS),
		})
	}
	if cfg.Recording.DeviceIndex >= 0 && strings.TrimSpace(cfg.Audio.Input) != "" && cfg.Audio.Input != "default" {
		warnings = append(warnings, Warning{
			Message: "recording.device_index is set; audio.input is ignored",
		})
	}

	return warnings, nil
}

func describeValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s must not be empty", key)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", key, strings.Join(strings.Fields(fe.Param()), ", "))
	case "gt":
		return fmt.Errorf("%s must be > %s", key, fe.Param())
	case "gte":
		return fmt.Errorf("%s must be >= %s", key, fe.Param())
	case "lt":
		return fmt.Errorf("%s must be < %s", key, fe.Param())
	case "lte":
		return fmt.Errorf("%s must be <= %s", key, fe.Param())
	case "url":
		return fmt.Errorf("%s must be a valid URL", key)
	default:
		return fmt.Errorf("%s failed %q validation", key, fe.Tag())
	}
}
