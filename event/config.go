package event

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvReadyURL    = "FACEFINDER_READY_URL"
	EnvEventURL    = "FACEFINDER_EVENT_URL"
	EnvResponseURL = "FACEFINDER_RESPONSE_URL"
	EnvErrorURL    = "FACEFINDER_ERROR_URL"
	EnvBackoff     = "FACEFINDER_BACKOFF"
)

// DefaultBackoff is the wait after a failed event fetch.
const DefaultBackoff = time.Second

// Config holds the endpoints of the event runtime.
type Config struct {
	ReadyURL    string        `validate:"required,url"`
	EventURL    string        `validate:"required,url"`
	ResponseURL string        `validate:"required,url"`
	ErrorURL    string        `validate:"required,url"`
	Backoff     time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// Validate reports the first missing or malformed endpoint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid event config: %w", err)
	}
	return nil
}

// ConfigFromEnv builds the configuration from the environment. The variables
// found in envFiles are loaded first, without overriding those already set.
func ConfigFromEnv(envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("could not load the env file: %w", err)
		}
	}

	cfg := Config{
		ReadyURL:    os.Getenv(EnvReadyURL),
		EventURL:    os.Getenv(EnvEventURL),
		ResponseURL: os.Getenv(EnvResponseURL),
		ErrorURL:    os.Getenv(EnvErrorURL),
		Backoff:     DefaultBackoff,
	}
	if v := os.Getenv(EnvBackoff); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvBackoff, err)
		}
		cfg.Backoff = d
	}
	return cfg, cfg.Validate()
}
