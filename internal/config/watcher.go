package config

import (
	"context"
	"os"
	"sync"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/models"

	"github.com/sirupsen/logrus"
)

// ConfigWatcher polls the configuration file and reloads it on change.
// Only settings that can change at runtime are acted upon by callbacks;
// the log level is the main one.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	modTime    time.Time
	callbacks  []func(*models.Config)
}

// NewConfigWatcher creates a watcher polling every interval; zero uses the
// default.
func NewConfigWatcher(configPath string, interval time.Duration, logger *logrus.Logger) *ConfigWatcher {
	if interval <= 0 {
		interval = constants.DefaultConfigWatchIntervalSec * time.Second
	}
	return &ConfigWatcher{
		configPath: configPath,
		interval:   interval,
		logger:     logger,
	}
}

// Load reads the initial configuration
func (cw *ConfigWatcher) Load() (*models.Config, error) {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return nil, err
	}

	cw.mu.Lock()
	cw.config = config
	cw.modTime = stat.ModTime()
	cw.mu.Unlock()
	return config, nil
}

// Start polls until ctx is cancelled. Load is called first if it has not
// been.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if cw.GetConfig() == nil {
		if _, err := cw.Load(); err != nil {
			return err
		}
	}

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil
		case <-ticker.C:
			cw.poll()
		}
	}
}

func (cw *ConfigWatcher) poll() {
	stat, err := os.Stat(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to stat configuration file")
		return
	}

	cw.mu.Lock()
	changed := stat.ModTime().After(cw.modTime)
	if changed {
		cw.modTime = stat.ModTime()
	}
	cw.mu.Unlock()

	if changed {
		cw.logger.Debug("Configuration file changed")
		cw.reloadConfig()
	}
}

// GetConfig returns the current configuration
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback run after every successful reload
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// reloadConfig keeps the previous configuration when the new file is invalid
func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping the previous one")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")
	cw.logConfigChanges(oldConfig, newConfig)

	for _, callback := range callbacks {
		cw.runCallback(callback, newConfig)
	}
}

func (cw *ConfigWatcher) runCallback(cb func(*models.Config), config *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	cb(config)
}

// logConfigChanges logs changes, including those that need a restart
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{"old": old.LogLevel, "new": new.LogLevel}).Info("Log level changed")
	}
	if old.Scheduler != new.Scheduler {
		cw.logger.WithFields(logrus.Fields{
			"old_policy": old.Scheduler.Policy,
			"new_policy": new.Scheduler.Policy,
		}).Warn("Scheduler configuration changed; restart to apply")
	}
	if old.Store != new.Store {
		cw.logger.Warn("Store configuration changed; restart to apply")
	}
}

// ApplyLogLevel returns a callback that updates logger's level on reload
func ApplyLogLevel(logger *logrus.Logger) func(*models.Config) {
	return func(c *models.Config) {
		level, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid log level")
			return
		}
		logger.SetLevel(level)
	}
}
