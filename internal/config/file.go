package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the optional YAML devices file.
//
//	devices:
//	  - id: "AA:BB:CC:DD:EE:FF"
//	    name: bathroom
//	    key: 00112233445566778899aabbccddeeff
//	match: strict
//	reconnect:
//	  enabled: true
//	  maxAttempts: 10
//	  baseDelay: 1s
//	  maxDelay: 30s
type File struct {
	Devices   []Device  `yaml:"devices"`
	Match     string    `yaml:"match"`
	Reconnect Reconnect `yaml:"reconnect"`
}

// Device binds a key to a scale. An entry with no id supplies the
// fallback key for any device without its own.
type Device struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// Reconnect fields left unset keep the command-line values.
type Reconnect struct {
	Enabled     *bool         `yaml:"enabled"`
	MaxAttempts *int          `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

// LoadFile reads path. An empty path yields an empty File.
func LoadFile(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

func (f File) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, d := range f.Devices {
		id := strings.ToUpper(strings.TrimSpace(d.ID))
		if seen[id] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID))
		}
		seen[id] = true
		if strings.TrimSpace(d.Key) == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: key is required", i))
		}
	}
	switch f.Match {
	case "", "strict", "lenient":
	default:
		errs = append(errs, fmt.Errorf("invalid match %q (allowed: strict, lenient)", f.Match))
	}
	if m := f.Reconnect.MaxAttempts; m != nil && *m < 0 {
		errs = append(errs, fmt.Errorf("reconnect.maxAttempts must not be negative, got %d", *m))
	}
	if f.Reconnect.BaseDelay < 0 || f.Reconnect.MaxDelay < 0 {
		errs = append(errs, errors.New("reconnect delays must not be negative"))
	}
	return errors.Join(errs...)
}

// Name returns the configured display name for id, if any.
func (f File) Name(id string) string {
	for _, d := range f.Devices {
		if strings.EqualFold(strings.TrimSpace(d.ID), strings.TrimSpace(id)) && d.ID != "" {
			return d.Name
		}
	}
	return ""
}
