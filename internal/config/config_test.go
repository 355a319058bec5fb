package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeTestConfig(t *testing.T, configPath string, cfg *Config) {
	t.Helper()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func validTestConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Path:        "/models/mailcam.onnx",
			AllowLabels: []string{"amazon", "dhl", "fedex", "ups", "usps"},
		},
		Source: SourceConfig{
			URL: "http://camera.local/snapshot.jpg",
		},
		MQTT: MQTTConfig{
			Host: "broker.local",
		},
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mailcam.yaml")

	writeTestConfig(t, configPath, validTestConfig())

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Model.Path != "/models/mailcam.onnx" {
		t.Errorf("Expected model path /models/mailcam.onnx, got %s", cfg.Model.Path)
	}
	if cfg.MQTT.Host != "broker.local" {
		t.Errorf("Expected mqtt host broker.local, got %s", cfg.MQTT.Host)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/mailcam.yaml")
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := validTestConfig()
	cfg.setDefaults()

	if cfg.Model.TensorSide != 640 {
		t.Errorf("Expected default tensor_side 640, got %d", cfg.Model.TensorSide)
	}
	if cfg.Model.ConfMin != 0.30 {
		t.Errorf("Expected default conf_min 0.30, got %f", cfg.Model.ConfMin)
	}
	if cfg.Model.IoUThreshold != 0.45 {
		t.Errorf("Expected default iou_threshold 0.45, got %f", cfg.Model.IoUThreshold)
	}
	if cfg.Source.PollInterval != 2500*time.Millisecond {
		t.Errorf("Expected default poll_interval 2.5s, got %v", cfg.Source.PollInterval)
	}
	if cfg.Tracker.ResetHour != 3 {
		t.Errorf("Expected default reset_hour 3, got %d", cfg.Tracker.ResetHour)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("Expected default mqtt port 1883, got %d", cfg.MQTT.Port)
	}
	if cfg.MQTT.BaseTopic != "mailcam" {
		t.Errorf("Expected default base_topic mailcam, got %s", cfg.MQTT.BaseTopic)
	}
}

func TestExplicitMidnightResetHour(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mailcam.yaml")

	yamlData := `
model:
  path: /models/mailcam.onnx
  allow_labels: [amazon]
source:
  url: http://camera.local/snapshot.jpg
mqtt:
  host: broker.local
tracker:
  reset_hour: 0
`
	if err := os.WriteFile(configPath, []byte(yamlData), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tracker.ResetHour != 0 {
		t.Errorf("Explicit reset_hour 0 should be kept, got %d", cfg.Tracker.ResetHour)
	}
}

func TestValidate(t *testing.T) {
	cfg := validTestConfig()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should pass validation: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"missing model path", func(cfg *Config) { cfg.Model.Path = "" }},
		{"conf_min above 1", func(cfg *Config) { cfg.Model.ConfMin = 1.5 }},
		{"negative area_min_frac", func(cfg *Config) { cfg.Model.AreaMinFrac = -0.1 }},
		{"iou_threshold above 1", func(cfg *Config) { cfg.Model.IoUThreshold = 2 }},
		{"empty allow_labels", func(cfg *Config) { cfg.Model.AllowLabels = nil }},
		{"duplicate allow_labels", func(cfg *Config) { cfg.Model.AllowLabels = []string{"ups", "ups"} }},
		{"missing source url", func(cfg *Config) { cfg.Source.URL = "" }},
		{"missing mqtt host", func(cfg *Config) { cfg.MQTT.Host = "" }},
		{"reset_hour above 23", func(cfg *Config) { cfg.Tracker.ResetHour = 24 }},
		{"negative reset_hour", func(cfg *Config) { cfg.Tracker.ResetHour = -1 }},
		{"bad log level", func(cfg *Config) { cfg.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			cfg.setDefaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestService_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mailcam.yaml")
	writeTestConfig(t, configPath, validTestConfig())

	t.Setenv("MAILCAM_POLL", "7.5")
	t.Setenv("MAILCAM_MQTT_HOST", "override.local")

	svc, err := NewService(configPath, testLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	cfg := svc.Get()
	if cfg.Source.PollInterval != 7500*time.Millisecond {
		t.Errorf("Expected poll interval 7.5s from env, got %v", cfg.Source.PollInterval)
	}
	if cfg.MQTT.Host != "override.local" {
		t.Errorf("Expected mqtt host override.local, got %s", cfg.MQTT.Host)
	}
}

func TestBrokerURL(t *testing.T) {
	mc := MQTTConfig{Host: "broker.local", Port: 1883}
	if got := mc.BrokerURL(); got != "tcp://broker.local:1883" {
		t.Errorf("Expected tcp://broker.local:1883, got %s", got)
	}
}
