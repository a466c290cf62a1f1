package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetReorderWindow(); got != 120*time.Millisecond {
		t.Errorf("GetReorderWindow() = %s, want 120ms", got)
	}
	if got := cfg.GetTickInterval(); got != 50*time.Millisecond {
		t.Errorf("GetTickInterval() = %s, want 50ms", got)
	}
	if got := cfg.GetBufferCapacity(); got != 256 {
		t.Errorf("GetBufferCapacity() = %d, want 256", got)
	}
	if got := cfg.GetWorldFrame(); got != "map" {
		t.Errorf("GetWorldFrame() = %q, want \"map\"", got)
	}
	if got := cfg.GetBodyFrame(); got != "base" {
		t.Errorf("GetBodyFrame() = %q, want \"base\"", got)
	}
	if got := cfg.GetTransformHistory(); got != 64 {
		t.Errorf("GetTransformHistory() = %d, want 64", got)
	}
	if got := cfg.GetInitFixCount(); got != 3 {
		t.Errorf("GetInitFixCount() = %d, want 3", got)
	}
	if got := cfg.GetLookaheadDistance(); got != 0.1 {
		t.Errorf("GetLookaheadDistance() = %f, want 0.1", got)
	}
	if got := cfg.GetGoalTolerance(); got != 0.05 {
		t.Errorf("GetGoalTolerance() = %f, want 0.05", got)
	}
	if got := cfg.GetWheelSeparation(); got != 0.102 {
		t.Errorf("GetWheelSeparation() = %f, want 0.102", got)
	}
	if got := cfg.GetMaxLinearSpeed(); got != 0.5 {
		t.Errorf("GetMaxLinearSpeed() = %f, want 0.5", got)
	}
	if got := cfg.GetTrailLength(); got != 600 {
		t.Errorf("GetTrailLength() = %d, want 600", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	testJSON := `{
  "reorder_window": "200ms",
  "buffer_capacity": 512,
  "world_frame": "arena",
  "body_frame": "robot",
  "process_noise_pos": 0.02,
  "lookahead_distance": 0.25,
  "cruise_speed": 0.2,
  "max_linear_speed": 0.8,
  "wheel_separation": 0.15,
  "tick_interval": "25ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig() error: %v", err)
	}

	if got := cfg.GetReorderWindow(); got != 200*time.Millisecond {
		t.Errorf("GetReorderWindow() = %s, want 200ms", got)
	}
	if got := cfg.GetBufferCapacity(); got != 512 {
		t.Errorf("GetBufferCapacity() = %d, want 512", got)
	}
	if got := cfg.GetWorldFrame(); got != "arena" {
		t.Errorf("GetWorldFrame() = %q, want \"arena\"", got)
	}
	if got := cfg.GetBodyFrame(); got != "robot" {
		t.Errorf("GetBodyFrame() = %q, want \"robot\"", got)
	}
	if got := cfg.GetProcessNoisePos(); got != 0.02 {
		t.Errorf("GetProcessNoisePos() = %f, want 0.02", got)
	}
	if got := cfg.GetLookaheadDistance(); got != 0.25 {
		t.Errorf("GetLookaheadDistance() = %f, want 0.25", got)
	}
	if got := cfg.GetCruiseSpeed(); got != 0.2 {
		t.Errorf("GetCruiseSpeed() = %f, want 0.2", got)
	}
	if got := cfg.GetMaxLinearSpeed(); got != 0.8 {
		t.Errorf("GetMaxLinearSpeed() = %f, want 0.8", got)
	}
	if got := cfg.GetWheelSeparation(); got != 0.15 {
		t.Errorf("GetWheelSeparation() = %f, want 0.15", got)
	}
	if got := cfg.GetTickInterval(); got != 25*time.Millisecond {
		t.Errorf("GetTickInterval() = %s, want 25ms", got)
	}

	// Unset fields keep defaults.
	if got := cfg.GetGoalTolerance(); got != 0.05 {
		t.Errorf("GetGoalTolerance() = %f, want default 0.05", got)
	}
	if got := cfg.GetInitFixCount(); got != 3 {
		t.Errorf("GetInitFixCount() = %d, want default 3", got)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	if err := os.WriteFile(configPath, []byte(`{"cruise_speed": 0.3}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig() error: %v", err)
	}
	if got := cfg.GetCruiseSpeed(); got != 0.3 {
		t.Errorf("GetCruiseSpeed() = %f, want 0.3", got)
	}
	if got := cfg.GetMaxAngularSpeed(); got != 4.0 {
		t.Errorf("GetMaxAngularSpeed() = %f, want default 4.0", got)
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTuningConfig(filepath.Join(tmpDir, "nope.json"))
		if err == nil {
			t.Error("Expected error when loading missing file, got nil")
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(tmpDir, "tuning.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadTuningConfig(path)
		if err == nil || !strings.Contains(err.Error(), ".json extension") {
			t.Errorf("Expected extension error, got %v", err)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.json")
		if err := os.WriteFile(path, []byte(`{"cruise_speed": `), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadTuningConfig(path)
		if err == nil {
			t.Error("Expected error when loading malformed JSON, got nil")
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		path := filepath.Join(tmpDir, "invalid.json")
		if err := os.WriteFile(path, []byte(`{"init_fix_count": 0}`), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadTuningConfig(path)
		if err == nil || !strings.Contains(err.Error(), "init_fix_count") {
			t.Errorf("Expected init_fix_count error, got %v", err)
		}
	})
}

func TestTuningConfigValidate(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	intPtr := func(n int) *int { return &n }

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr bool
	}{
		{"empty is valid", TuningConfig{}, false},
		{"valid reorder window", TuningConfig{ReorderWindow: strPtr("80ms")}, false},
		{"garbage reorder window", TuningConfig{ReorderWindow: strPtr("soon")}, true},
		{"negative reorder window", TuningConfig{ReorderWindow: strPtr("-10ms")}, true},
		{"zero tick interval", TuningConfig{TickInterval: strPtr("0s")}, true},
		{"negative buffer capacity", TuningConfig{BufferCapacity: intPtr(-1)}, true},
		{"zero init fixes", TuningConfig{InitFixCount: intPtr(0)}, true},
		{"negative trail length", TuningConfig{TrailLength: intPtr(-5)}, true},
		{"same world and body frame", TuningConfig{WorldFrame: strPtr("base"), BodyFrame: strPtr("base")}, true},
		{"distinct frames", TuningConfig{WorldFrame: strPtr("map"), BodyFrame: strPtr("base")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
