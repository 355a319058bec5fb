package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Source    SourceConfig    `yaml:"source"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// ModelConfig contains detection model and filtering configuration
type ModelConfig struct {
	Path         string   `yaml:"path"`
	LabelsPath   string   `yaml:"labels"`
	TensorSide   int      `yaml:"tensor_side"`
	ConfMin      float64  `yaml:"conf_min"`
	AreaMinFrac  float64  `yaml:"area_min_frac"`
	IoUThreshold float64  `yaml:"iou_threshold"`
	AllowLabels  []string `yaml:"allow_labels"`
}

// SourceConfig contains snapshot source configuration
type SourceConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	InferTimeout time.Duration `yaml:"infer_timeout"`
}

// MQTTConfig contains broker and topic configuration
type MQTTConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	ClientID        string        `yaml:"client_id"`
	BaseTopic       string        `yaml:"base_topic"`
	DiscoveryPrefix string        `yaml:"discovery_prefix"`
	QueueSize       int           `yaml:"queue_size"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// TrackerConfig contains daily carrier tracker configuration
type TrackerConfig struct {
	ResetHour int `yaml:"reset_hour"`

	// resetHourSet distinguishes an explicit 0 from an absent value.
	resetHourSet bool
}

// UnmarshalYAML keeps track of whether reset_hour was set explicitly,
// since midnight (0) is a valid reset hour.
func (t *TrackerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ResetHour *int `yaml:"reset_hour"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ResetHour != nil {
		t.ResetHour = *raw.ResetHour
		t.resetHourSet = true
	}
	return nil
}

// TelemetryConfig contains heartbeat reporting configuration
type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// WebConfig contains status web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg := Config{
		Telemetry: TelemetryConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/mailcam.yaml",
		"./mailcam.yaml",
		"/etc/mailcam/mailcam.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[0]
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Model.TensorSide == 0 {
		c.Model.TensorSide = 640
	}
	if c.Model.ConfMin == 0 {
		c.Model.ConfMin = 0.30
	}
	if c.Model.AreaMinFrac == 0 {
		c.Model.AreaMinFrac = 0.0005
	}
	if c.Model.IoUThreshold == 0 {
		c.Model.IoUThreshold = 0.45
	}

	if c.Source.PollInterval == 0 {
		c.Source.PollInterval = 2500 * time.Millisecond
	}
	if c.Source.FetchTimeout == 0 {
		c.Source.FetchTimeout = 5 * time.Second
	}
	if c.Source.InferTimeout == 0 {
		c.Source.InferTimeout = 10 * time.Second
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "mailcam-detector"
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "mailcam"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.QueueSize == 0 {
		c.MQTT.QueueSize = 256
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}

	if !c.Tracker.resetHourSet {
		c.Tracker.ResetHour = 3
	}

	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = time.Minute
	}

	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
}
