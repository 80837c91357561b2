// Package config loads processor settings from a YAML file: a single
// os.ReadFile followed by yaml.Unmarshal into a flat settings document.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SpeculativeExecution configures a profile's speculative retry knob.
type SpeculativeExecution struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// ExecutionProfileSettings is one named profile's on-disk
// representation. pkg/profile.New does not read it: a runtime
// ExecutionProfile is constructed in code from a name and a policy
// factory.
type ExecutionProfileSettings struct {
	ConsistencyLevel string                `yaml:"consistencyLevel"`
	RequestTimeout   time.Duration         `yaml:"requestTimeout"`
	LoadBalancing    string                `yaml:"loadBalancing"`
	Speculative      *SpeculativeExecution `yaml:"speculative,omitempty"`
}

// Settings is the processor's full on-disk configuration.
type Settings struct {
	// MaxSchemaWaitTime bounds how long OnWaitForSchemaAgreement waits
	// before giving up.
	MaxSchemaWaitTime time.Duration `yaml:"maxSchemaWaitTime"`

	// PrepareOnAllHosts enables the prepare-on-all-hosts fan-out after
	// a successful PREPARE.
	PrepareOnAllHosts bool `yaml:"prepareOnAllHosts"`

	// TimestampGenerator selects how client-side timestamps are
	// produced: "monotonic" (default) or "none" (server-assigned).
	TimestampGenerator string `yaml:"timestampGenerator"`

	// QueueCapacity bounds the per-worker request queue (pkg/queue).
	QueueCapacity int `yaml:"queueCapacity"`

	// FlushRatio is the target percent of wall-clock time spent
	// flushing versus processing; 90 is the conventional default.
	FlushRatio int `yaml:"flushRatio"`

	// DefaultProfile names the profile used when a request specifies
	// none. A request naming a profile Profiles doesn't contain fails
	// with an invalid-profile error instead.
	DefaultProfile string `yaml:"defaultProfile"`

	// Profiles is the name -> settings table for every non-default
	// execution profile.
	Profiles map[string]ExecutionProfileSettings `yaml:"profiles"`
}

// DefaultSettings returns the settings a processor uses if no
// configuration file is supplied.
func DefaultSettings() Settings {
	return Settings{
		MaxSchemaWaitTime:  10 * time.Second,
		PrepareOnAllHosts:  true,
		TimestampGenerator: "monotonic",
		QueueCapacity:      8192,
		FlushRatio:         90,
		DefaultProfile:     "default",
		Profiles:           map[string]ExecutionProfileSettings{},
	}
}

// Load reads and parses a Settings document from path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return settings, nil
}

// Validate reports the first setting that would produce a processor
// that cannot start.
func (s Settings) Validate() error {
	if s.FlushRatio <= 0 || s.FlushRatio >= 100 {
		return fmt.Errorf("config: flushRatio must be in (0, 100), got %d", s.FlushRatio)
	}
	if s.QueueCapacity <= 0 {
		return fmt.Errorf("config: queueCapacity must be positive, got %d", s.QueueCapacity)
	}
	if s.DefaultProfile == "" {
		return fmt.Errorf("config: defaultProfile must be set")
	}
	if _, reserved := s.Profiles[s.DefaultProfile]; reserved {
		return fmt.Errorf("config: defaultProfile %q must not also appear in profiles", s.DefaultProfile)
	}
	return nil
}
