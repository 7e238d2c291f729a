package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the variables read by ApplyEnv.
const EnvPrefix = "CHATPULSE_"

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes after expanding ${VAR} and
// ${VAR:-fallback} references. Unknown keys are rejected so a misspelt
// setting does not silently fall back to its default.
func Parse(data []byte) (*ClientConfig, error) {
	expanded := os.Expand(string(data), lookupWithFallback(os.LookupEnv))

	var cfg ClientConfig
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// lookupWithFallback resolves NAME or NAME:-fallback. The fallback is used
// when NAME is unset or empty.
func lookupWithFallback(lookup func(string) (string, bool)) func(string) string {
	return func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v, ok := lookup(name); ok && (v != "" || !hasFallback) {
			return v
		}
		return fallback
	}
}

// ApplyEnv overrides credentials from CHATPULSE_* variables, so secrets
// can stay out of the file entirely. lookup is usually os.LookupEnv.
func (c *ClientConfig) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		name string
		dst  *string
	}{
		{"API_KEY", &c.Auth.APIKey},
		{"EMAIL", &c.Auth.Email},
		{"PASSWORD", &c.Auth.Password},
		{"LOGIN_TOKEN", &c.Auth.CustomToken},
		{"DB_PASSWORD", &c.Storage.Postgres.Password},
		{"LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := lookup(EnvPrefix + o.name); ok && v != "" {
			*o.dst = v
		}
	}
}

// LoadWithDefaults loads config, applies CHATPULSE_* overrides and then
// default values.
func LoadWithDefaults(path string) (*ClientConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*ClientConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
