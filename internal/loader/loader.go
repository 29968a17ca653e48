// Package loader provides functions for loading strata configuration
// from YAML files and the environment.
package loader

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/strata/internal/config"
)

// Environment variables that override the configuration file.
const (
	EnvLogLevel      = "STRATA_LOG_LEVEL"
	EnvLVMSudo       = "STRATA_LVM_SUDO"
	EnvMetricsListen = "STRATA_METRICS_LISTEN"
)

// LoadFromFile loads a strata configuration from a YAML file.
// A .env file in the working directory is loaded first when present, and
// STRATA_* variables take precedence over the file.
func LoadFromFile(path string) (*config.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	f, err := parse(data)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(f); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return f, nil
}

// LoadFromYAML loads a strata configuration from YAML bytes.
// The environment is not consulted.
func LoadFromYAML(data []byte) (*config.File, error) {
	f, err := parse(data)
	if err != nil {
		return nil, err
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return f, nil
}

func parse(data []byte) (*config.File, error) {
	var f config.File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	// Normalize user input before validation
	f.Normalize()
	applyDefaults(&f)

	return &f, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(f *config.File) {
	for i := range f.Pools {
		if f.Pools[i].RevisionsToKeep == nil {
			keep := config.DefaultRevisionsToKeep
			f.Pools[i].RevisionsToKeep = &keep
		}
	}

	for i := range f.Volumes {
		v := &f.Volumes[i]
		if v.DevType == "" {
			v.DevType = config.DefaultDevType
		}
		if v.RW == nil {
			rw := true
			v.RW = &rw
		}
	}

	if f.Metrics.Listen == "" {
		f.Metrics.Listen = config.DefaultMetricsListen
	}
	if f.Metrics.Interval == "" {
		f.Metrics.Interval = config.DefaultMetricsInterval
	}
}

// applyEnv overlays STRATA_* environment variables onto f.
func applyEnv(f *config.File) error {
	if value := os.Getenv(EnvLogLevel); value != "" {
		f.Log.Level = strings.ToLower(value)
	}

	if value := os.Getenv(EnvLVMSudo); value != "" {
		sudo, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", EnvLVMSudo, value)
		}
		f.LVM.Sudo = &sudo
	}

	if value := os.Getenv(EnvMetricsListen); value != "" {
		f.Metrics.Listen = value
	}

	return nil
}
