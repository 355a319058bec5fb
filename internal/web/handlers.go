package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailcam/mailcam/internal/health"
)

// handleLiveness reports that the process is up, nothing more.
func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// handleHealth runs the full health check suite. Unhealthy reports are
// served with 503 so load balancers and systemd watchdogs can act on
// the status code alone.
func (s *Server) handleHealth(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
		return
	}

	report := s.registry.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// handleStatus returns overall process status
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"version":   s.version,
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now(),
	}

	if s.collector != nil {
		status["cycles"] = s.collector.Stats()
		status["runtime"] = s.collector.Runtime()
	}

	c.JSON(http.StatusOK, status)
}

// handleSummary returns the daily carrier summary from the last cycle
func (s *Server) handleSummary(c *gin.Context) {
	if s.detector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Detection loop not available"})
		return
	}

	snap, ok := s.detector.Snapshot()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No detection cycle has completed yet"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// handleDetections returns the raw results of the most recent cycle
func (s *Server) handleDetections(c *gin.Context) {
	if s.detector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Detection loop not available"})
		return
	}

	details, ok := s.detector.LastCycle()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No detection cycle has completed yet"})
		return
	}

	c.JSON(http.StatusOK, details)
}

// handleGetConfig returns the active configuration with secrets masked
func (s *Server) handleGetConfig(c *gin.Context) {
	if s.configSvc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Configuration service not available"})
		return
	}

	cfg := s.configSvc.Get()

	mqtt := gin.H{
		"host":             cfg.MQTT.Host,
		"port":             cfg.MQTT.Port,
		"username":         cfg.MQTT.Username,
		"client_id":        cfg.MQTT.ClientID,
		"base_topic":       cfg.MQTT.BaseTopic,
		"discovery_prefix": cfg.MQTT.DiscoveryPrefix,
	}
	if cfg.MQTT.Password != "" {
		mqtt["password"] = "***"
	}

	c.JSON(http.StatusOK, gin.H{
		"model": gin.H{
			"path":          cfg.Model.Path,
			"labels":        cfg.Model.LabelsPath,
			"tensor_side":   cfg.Model.TensorSide,
			"conf_min":      cfg.Model.ConfMin,
			"area_min_frac": cfg.Model.AreaMinFrac,
			"iou_threshold": cfg.Model.IoUThreshold,
			"allow_labels":  cfg.Model.AllowLabels,
		},
		"source": gin.H{
			"url":           cfg.Source.URL,
			"poll_interval": cfg.Source.PollInterval.String(),
			"fetch_timeout": cfg.Source.FetchTimeout.String(),
			"infer_timeout": cfg.Source.InferTimeout.String(),
		},
		"mqtt": mqtt,
		"tracker": gin.H{
			"reset_hour": cfg.Tracker.ResetHour,
		},
		"telemetry": gin.H{
			"enabled":  cfg.Telemetry.Enabled,
			"interval": cfg.Telemetry.Interval.String(),
		},
		"web": gin.H{
			"enabled": cfg.Web.Enabled,
			"host":    cfg.Web.Host,
			"port":    cfg.Web.Port,
		},
	})
}

// handleMetrics returns loop counters and Go runtime statistics
func (s *Server) handleMetrics(c *gin.Context) {
	if s.collector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telemetry collector not available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cycles":    s.collector.Stats(),
		"runtime":   s.collector.Runtime(),
		"timestamp": time.Now(),
	})
}
