package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config is the environment driven configuration of the service.
type Config struct {
	HTTPPort     int
	RealtimePort int
	DatabaseURL  string

	// RedisAddr is optional; empty disables the profile cache and the event bus.
	RedisAddr string
	RedisDB   int

	JWTSecret string
	TokenTTL  time.Duration

	Location        *time.Location
	ReminderLead    time.Duration
	ProfileCacheTTL time.Duration

	SMTPHost  string
	SMTPPort  int
	EmailUser string
	EmailPass string

	LogLevel slog.Level

	// EnvFileLoaded is false when no .env file was found.
	EnvFileLoaded bool
}

// MailEnabled reports whether reminder e-mails can be sent.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.EmailUser != ""
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv()
	cfg.EnvFileLoaded = loaded
	return cfg, err
}

// FromEnv parses the process environment, applying defaults to optional keys.
// Every missing or malformed key is reported in one error.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPPort:        8000,
		RealtimePort:    8001,
		TokenTTL:        24 * time.Hour,
		Location:        time.Local,
		ReminderLead:    time.Hour,
		ProfileCacheTTL: 10 * time.Minute,
		SMTPPort:        587,
		LogLevel:        slog.LevelInfo,
	}

	var missing, invalid []string

	readInt := func(key string, dst *int, valid func(int) bool) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil || !valid(n) {
			invalid = append(invalid, key)
			return
		}
		*dst = n
	}
	readDuration := func(key string, dst *time.Duration) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			return
		}
		*dst = d
	}
	port := func(n int) bool { return n > 0 && n < 65536 }

	readInt("HTTP_PORT", &cfg.HTTPPort, port)
	readInt("REALTIME_PORT", &cfg.RealtimePort, port)
	readInt("REDIS_DB", &cfg.RedisDB, func(n int) bool { return n >= 0 })
	readInt("SMTP_PORT", &cfg.SMTPPort, port)
	readDuration("JWT_TTL", &cfg.TokenTTL)
	readDuration("REMINDER_LEAD", &cfg.ReminderLead)
	readDuration("PROFILE_CACHE_TTL", &cfg.ProfileCacheTTL)

	if cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL")); cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET")); cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	cfg.EmailUser = strings.TrimSpace(os.Getenv("EMAIL_USER"))
	cfg.EmailPass = os.Getenv("EMAIL_PASS")

	if tz := strings.TrimSpace(os.Getenv("TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			invalid = append(invalid, "LOG_LEVEL")
		}
	}

	if cfg.HTTPPort == cfg.RealtimePort {
		invalid = append(invalid, "REALTIME_PORT")
	}

	var problems []error
	if len(missing) > 0 {
		problems = append(problems, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		problems = append(problems, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", ")))
	}
	if len(problems) > 0 {
		return Config{}, errors.Join(problems...)
	}
	return cfg, nil
}
