package config

import (
	"fmt"
	"strings"
)

// Validate validates the configuration with detailed error messages.
// A non-nil error is fatal: the detection loop must not be entered.
func (c *Config) Validate() error {
	var errors []string

	if c.Model.Path == "" {
		errors = append(errors, "model.path is required")
	}

	if c.Model.TensorSide <= 0 {
		errors = append(errors, fmt.Sprintf("model.tensor_side must be > 0, got: %d", c.Model.TensorSide))
	}

	if c.Model.ConfMin < 0 || c.Model.ConfMin > 1 {
		errors = append(errors, fmt.Sprintf("model.conf_min must be between 0 and 1, got: %.3f", c.Model.ConfMin))
	}

	if c.Model.AreaMinFrac < 0 || c.Model.AreaMinFrac > 1 {
		errors = append(errors, fmt.Sprintf("model.area_min_frac must be between 0 and 1, got: %.6f", c.Model.AreaMinFrac))
	}

	if c.Model.IoUThreshold < 0 || c.Model.IoUThreshold > 1 {
		errors = append(errors, fmt.Sprintf("model.iou_threshold must be between 0 and 1, got: %.3f", c.Model.IoUThreshold))
	}

	if len(c.Model.AllowLabels) == 0 {
		errors = append(errors, "model.allow_labels must list at least one label")
	}

	seen := make(map[string]bool)
	for _, label := range c.Model.AllowLabels {
		if label == "" {
			errors = append(errors, "model.allow_labels must not contain empty labels")
			continue
		}
		if seen[label] {
			errors = append(errors, fmt.Sprintf("model.allow_labels contains duplicate label: %s", label))
		}
		seen[label] = true
	}

	if c.Source.URL == "" {
		errors = append(errors, "source.url is required")
	}

	if c.Source.PollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("source.poll_interval must be > 0, got: %v", c.Source.PollInterval))
	}

	if c.Source.FetchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("source.fetch_timeout must be > 0, got: %v", c.Source.FetchTimeout))
	}

	if c.Source.InferTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("source.infer_timeout must be > 0, got: %v", c.Source.InferTimeout))
	}

	if c.MQTT.Host == "" {
		errors = append(errors, "mqtt.host is required")
	}

	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errors = append(errors, fmt.Sprintf("mqtt.port must be between 1 and 65535, got: %d", c.MQTT.Port))
	}

	if c.Telemetry.Enabled && c.Telemetry.Interval <= 0 {
		errors = append(errors, fmt.Sprintf("telemetry.interval must be > 0, got: %v", c.Telemetry.Interval))
	}

	if c.Tracker.ResetHour < 0 || c.Tracker.ResetHour > 23 {
		errors = append(errors, fmt.Sprintf("tracker.reset_hour must be between 0 and 23, got: %d", c.Tracker.ResetHour))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	if c.Web.Enabled {
		if c.Web.Port <= 0 || c.Web.Port > 65535 {
			errors = append(errors, fmt.Sprintf("web.port must be between 1 and 65535, got: %d", c.Web.Port))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// BrokerURL returns the MQTT broker URL in paho format
func (c *MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}
