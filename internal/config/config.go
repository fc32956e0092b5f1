// Package config loads runtime settings from the environment and an optional
// YAML file. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	yaml "go.yaml.in/yaml/v3"

	"group-reminder/internal/model"
	"group-reminder/internal/timeparse"
)

// Setting names. The YAML file uses the same names in lower case.
const (
	KeyTelegramToken         = "TELEGRAM_TOKEN"
	KeyDatabaseURL           = "DATABASE_URL"
	KeyTimezone              = "TIMEZONE"
	KeyLogLevel              = "LOG_LEVEL"
	KeyLogFormat             = "LOG_FORMAT"
	KeyReconcileInterval     = "RECONCILE_INTERVAL"
	KeyDeliveryRate          = "DELIVERY_RATE"
	KeyRemindJitter          = "REMIND_JITTER"
	KeyDefaultRemindOffset   = "DEFAULT_REMIND_OFFSET"
	KeyDefaultRemindInterval = "DEFAULT_REMIND_INTERVAL"
	KeyDefaultRecurType      = "DEFAULT_RECUR_TYPE"
	KeyDefaultRecurInterval  = "DEFAULT_RECUR_INTERVAL"
	KeyConfigFile            = "CONFIG_FILE"
)

// TaskDefaults fill in options a new task was created without.
type TaskDefaults struct {
	RemindOffset   time.Duration
	RemindInterval time.Duration
	RecurType      model.RecurType
	RecurInterval  time.Duration
}

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken     string
	DatabaseURL       string
	Location          *time.Location
	LogLevel          string
	LogFormat         string
	ReconcileInterval time.Duration
	DeliveryRate      float64
	RemindJitter      float64
	Defaults          TaskDefaults
	File              string
}

// Load reads configuration from CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv(KeyConfigFile)))
}

// LoadFile reads configuration from path (may be empty) and the environment.
func LoadFile(path string) (Config, error) {
	file := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	get := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		if v, ok := file[strings.ToLower(key)]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
		return ""
	}

	cfg := Config{
		TelegramToken: get(KeyTelegramToken),
		DatabaseURL:   get(KeyDatabaseURL),
		LogLevel:      get(KeyLogLevel),
		LogFormat:     strings.ToLower(get(KeyLogFormat)),
		File:          path,
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "group_reminder.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "console"
	case "console", "json":
	default:
		return cfg, fmt.Errorf("%s: unknown format %q", KeyLogFormat, cfg.LogFormat)
	}

	cfg.Location = time.Local
	if tz := get(KeyTimezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", KeyTimezone, err)
		}
		cfg.Location = loc
	}

	var err error
	if cfg.ReconcileInterval, err = positiveDuration(KeyReconcileInterval, get(KeyReconcileInterval), time.Hour); err != nil {
		return cfg, err
	}
	if cfg.DeliveryRate, err = parseFloat(KeyDeliveryRate, get(KeyDeliveryRate), 20); err != nil {
		return cfg, err
	}
	if cfg.DeliveryRate <= 0 {
		return cfg, fmt.Errorf("%s must be positive", KeyDeliveryRate)
	}
	if cfg.RemindJitter, err = parseFloat(KeyRemindJitter, get(KeyRemindJitter), 0.02); err != nil {
		return cfg, err
	}
	if cfg.RemindJitter < 0 || cfg.RemindJitter >= 1 {
		return cfg, fmt.Errorf("%s must be in [0, 1)", KeyRemindJitter)
	}

	d := &cfg.Defaults
	if d.RemindOffset, err = duration(KeyDefaultRemindOffset, get(KeyDefaultRemindOffset), -24*time.Hour); err != nil {
		return cfg, err
	}
	if d.RemindInterval, err = positiveDuration(KeyDefaultRemindInterval, get(KeyDefaultRemindInterval), 3*time.Hour); err != nil {
		return cfg, err
	}
	if d.RecurInterval, err = positiveDuration(KeyDefaultRecurInterval, get(KeyDefaultRecurInterval), 48*time.Hour); err != nil {
		return cfg, err
	}
	d.RecurType = model.RecurRegular
	if raw := get(KeyDefaultRecurType); raw != "" {
		if d.RecurType, err = model.ParseRecurType(raw); err != nil {
			return cfg, fmt.Errorf("%s: %w", KeyDefaultRecurType, err)
		}
	}
	return cfg, nil
}

// RequireToken reports a missing bot token.
func (c Config) RequireToken() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("%s is required", KeyTelegramToken)
	}
	return nil
}

func duration(key, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := timeparse.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func positiveDuration(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := duration(key, raw, def)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parseFloat(key, raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
