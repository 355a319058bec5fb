package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mailcam/mailcam/internal/logger"
)

// Service provides configuration management with environment variable support
type Service struct {
	config     *Config
	configPath string
	logger     *logger.Logger
	mu         sync.RWMutex
	watchers   []ConfigWatcher
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(ctx context.Context, oldConfig, newConfig *Config) error

// NewService creates a new configuration service
func NewService(configPath string, log *logger.Logger) (*Service, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Service{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		watchers:   make([]ConfigWatcher, 0),
	}, nil
}

// SetLogger attaches a logger after construction. The service is
// created before logging config is known, so this runs exactly once
// during startup.
func (s *Service) SetLogger(log *logger.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = log
}

// Get returns the current configuration (thread-safe)
func (s *Service) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Reload reloads the configuration from file
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldConfig := s.config

	newConfig, err := Load(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	applyEnvOverrides(newConfig)

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid reloaded configuration: %w", err)
	}

	s.config = newConfig

	for _, watcher := range s.watchers {
		if err := watcher(ctx, oldConfig, newConfig); err != nil {
			s.logger.Error("Config watcher error", "error", err)
		}
	}

	s.logger.Info("Configuration reloaded", "path", s.configPath)
	return nil
}

// Watch registers a configuration change watcher
func (s *Service) Watch(watcher ConfigWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, watcher)
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MAILCAM_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("MAILCAM_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}

	if val := os.Getenv("MAILCAM_MODEL_PATH"); val != "" {
		cfg.Model.Path = val
	}
	if val := os.Getenv("MAILCAM_SOURCE_URL"); val != "" {
		cfg.Source.URL = val
	}
	if val := os.Getenv("MAILCAM_POLL"); val != "" {
		// Accept both a duration ("2.5s") and bare seconds ("2.5"),
		// the latter for compatibility with older deployments.
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Source.PollInterval = d
		} else if sec, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Source.PollInterval = time.Duration(sec * float64(time.Second))
		}
	}

	if val := os.Getenv("MAILCAM_MQTT_HOST"); val != "" {
		cfg.MQTT.Host = val
	}
	if val := os.Getenv("MAILCAM_MQTT_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.MQTT.Port = port
		}
	}
	if val := os.Getenv("MAILCAM_MQTT_USER"); val != "" {
		cfg.MQTT.Username = val
	}
	if val := os.Getenv("MAILCAM_MQTT_PASS"); val != "" {
		cfg.MQTT.Password = val
	}

	if val := os.Getenv("MAILCAM_RESET_HOUR"); val != "" {
		if hour, err := strconv.Atoi(val); err == nil {
			cfg.Tracker.ResetHour = hour
			cfg.Tracker.resetHourSet = true
		}
	}
}
