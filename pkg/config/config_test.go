package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
maxSchemaWaitTime: 30s
prepareOnAllHosts: false
defaultProfile: reporting
profiles:
  reporting:
    consistencyLevel: LOCAL_QUORUM
    requestTimeout: 5s
    loadBalancing: token-aware
    speculative:
      delay: 100ms
      maxAttempts: 2
`)

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.MaxSchemaWaitTime != 30*time.Second {
		t.Errorf("MaxSchemaWaitTime = %v, want 30s", settings.MaxSchemaWaitTime)
	}
	if settings.PrepareOnAllHosts {
		t.Error("PrepareOnAllHosts = true, want false (overridden)")
	}
	if settings.QueueCapacity != DefaultSettings().QueueCapacity {
		t.Errorf("QueueCapacity = %d, want default %d left untouched", settings.QueueCapacity, DefaultSettings().QueueCapacity)
	}
	prof, ok := settings.Profiles["reporting"]
	if !ok {
		t.Fatal("profiles.reporting not loaded")
	}
	if prof.Speculative == nil || prof.Speculative.MaxAttempts != 2 {
		t.Errorf("reporting.speculative = %+v, want MaxAttempts 2", prof.Speculative)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load of a missing file did not return an error")
	}
}

func TestValidateRejectsBadFlushRatio(t *testing.T) {
	s := DefaultSettings()
	s.FlushRatio = 0
	if err := s.Validate(); err == nil {
		t.Fatal("Validate accepted flushRatio=0")
	}
}

func TestValidateRejectsDefaultProfileAlsoInProfiles(t *testing.T) {
	s := DefaultSettings()
	s.Profiles["default"] = ExecutionProfileSettings{}
	if err := s.Validate(); err == nil {
		t.Fatal("Validate accepted defaultProfile duplicated in profiles")
	}
}

func TestDefaultSettingsValidates(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("DefaultSettings() failed Validate: %v", err)
	}
}
