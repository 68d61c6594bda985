package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/validation"
	"gopkg.in/yaml.v3"
)

// Notifier backends
const (
	NotifierSMTP  = "smtp"
	NotifierQueue = "queue"
	NotifierLog   = "log"
)

// Config holds application configuration
type Config struct {
	DatabaseURL        string
	Notifier           string `validate:"oneof=smtp queue log"`
	SMTP               SMTPConfig
	RedisURL           string
	RabbitMQURL        string
	RabbitMQPrefetch   int    `validate:"gte=1"`
	HealthPort         string `validate:"required,numeric"`
	LogFormat          string `validate:"oneof=json console"`
	SchedulerDebugMode bool
	MailerDebugMode    bool
	OTELEnabled        bool
	OTELEndpoint       string
	ConfigFile         string
	Reminders          ReminderConfig
}

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Host     string
	Port     int `validate:"gte=0,lte=65535"`
	Username string
	Password string
	From     string
}

// ReminderConfig holds the cadence settings. It can be supplied as YAML via
// REMINDER_CONFIG_FILE; environment variables override file values.
// An empty HousekeepingSchedule (HOUSEKEEPING_SCHEDULE=off) disables housekeeping.
type ReminderConfig struct {
	DigestTimes                 []string `yaml:"digestTimes" validate:"required,min=1,dive,clock"`
	Timezone                    string   `yaml:"timezone" validate:"required,timezone"`
	TimerPollIntervalSeconds    int      `yaml:"timerPollIntervalSeconds" validate:"gte=1"`
	HousekeepingSchedule        string   `yaml:"housekeepingSchedule" validate:"omitempty,cron"`
	NotifiedTimerRetentionHours int      `yaml:"notifiedTimerRetentionHours" validate:"gte=1"`
	SendTimeoutSeconds          int      `yaml:"sendTimeoutSeconds" validate:"gte=1"`
	DigestDedup                 bool     `yaml:"digestDedup"`
}

// DefaultReminderConfig returns the stock cadence settings
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		DigestTimes:                 []string{"10:00", "17:00"},
		Timezone:                    "Asia/Karachi",
		TimerPollIntervalSeconds:    60,
		HousekeepingSchedule:        "30 3 * * *",
		NotifiedTimerRetentionHours: 72,
		SendTimeoutSeconds:          30,
	}
}

// Load loads configuration for the scheduler and the CLI
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.Notifier {
	case NotifierSMTP:
		if err := cfg.requireSMTP(); err != nil {
			return nil, err
		}
	case NotifierQueue:
		if cfg.RabbitMQURL == "" {
			return nil, fmt.Errorf("RABBITMQ_URL is required when NOTIFIER=queue")
		}
	}

	if cfg.Reminders.DigestDedup && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when DIGEST_DEDUP is enabled")
	}

	return cfg, nil
}

// LoadMailer loads configuration for the queue consumer that delivers mail
func LoadMailer() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for the mailer")
	}
	if err := cfg.requireSMTP(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Notifier:           strings.ToLower(getEnv("NOTIFIER", NotifierLog)),
		RedisURL:           getEnv("REDIS_URL", ""),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:   getEnvInt("RABBITMQ_PREFETCH", 1),
		HealthPort:         getEnv("HEALTH_PORT", "8081"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
		SchedulerDebugMode: getEnvBool("SCHEDULER_DEBUG_MODE", false),
		MailerDebugMode:    getEnvBool("MAILER_DEBUG_MODE", false),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ConfigFile:         getEnv("REMINDER_CONFIG_FILE", ""),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Reminders: DefaultReminderConfig(),
	}

	if cfg.ConfigFile != "" {
		if err := loadReminderFile(cfg.ConfigFile, &cfg.Reminders); err != nil {
			return nil, err
		}
	}
	applyReminderEnv(&cfg.Reminders)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validation.Validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", validation.FormatError(err))
	}
	return nil
}

func (c *Config) requireSMTP() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required")
	}
	return nil
}

// loadReminderFile overlays the YAML file at path onto rc
func loadReminderFile(path string, rc *ReminderConfig) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read reminder config file: %w", err)
	}
	if err := yaml.Unmarshal(data, rc); err != nil {
		return fmt.Errorf("failed to parse reminder config file: %w", err)
	}
	return nil
}

func applyReminderEnv(rc *ReminderConfig) {
	if value := os.Getenv("DIGEST_TIMES"); value != "" {
		var times []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				times = append(times, part)
			}
		}
		rc.DigestTimes = times
	}
	rc.Timezone = getEnv("REMINDER_TIMEZONE", rc.Timezone)
	rc.TimerPollIntervalSeconds = getEnvInt("TIMER_POLL_INTERVAL_SECONDS", rc.TimerPollIntervalSeconds)
	switch value := strings.TrimSpace(os.Getenv("HOUSEKEEPING_SCHEDULE")); value {
	case "":
	case "off":
		rc.HousekeepingSchedule = ""
	default:
		rc.HousekeepingSchedule = value
	}
	rc.NotifiedTimerRetentionHours = getEnvInt("NOTIFIED_TIMER_RETENTION_HOURS", rc.NotifiedTimerRetentionHours)
	rc.SendTimeoutSeconds = getEnvInt("SEND_TIMEOUT_SECONDS", rc.SendTimeoutSeconds)
	rc.DigestDedup = getEnvBool("DIGEST_DEDUP", rc.DigestDedup)
}

// Location loads the reference timezone
func (rc ReminderConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(rc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", rc.Timezone, err)
	}
	return loc, nil
}

// TimerPollInterval returns the timer cadence interval
func (rc ReminderConfig) TimerPollInterval() time.Duration {
	return time.Duration(rc.TimerPollIntervalSeconds) * time.Second
}

// NotifiedTimerRetention returns how long notified timers are kept
func (rc ReminderConfig) NotifiedTimerRetention() time.Duration {
	return time.Duration(rc.NotifiedTimerRetentionHours) * time.Hour
}

// SendTimeout returns the per-send timeout
func (rc ReminderConfig) SendTimeout() time.Duration {
	return time.Duration(rc.SendTimeoutSeconds) * time.Second
}

// DigestSlot is one configured digest time of day
type DigestSlot struct {
	Name   string
	Hour   int
	Minute int
}

// DigestSlots parses DigestTimes into named slots such as "digest-1000"
func (rc ReminderConfig) DigestSlots() ([]DigestSlot, error) {
	slots := make([]DigestSlot, 0, len(rc.DigestTimes))
	seen := make(map[string]struct{}, len(rc.DigestTimes))
	for _, value := range rc.DigestTimes {
		hour, minute, err := validation.ParseClock(value)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("digest-%02d%02d", hour, minute)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		slots = append(slots, DigestSlot{Name: name, Hour: hour, Minute: minute})
	}
	return slots, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
