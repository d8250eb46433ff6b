package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env      string         `yaml:"env"`
	Port     string         `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Event    EventConfig    `yaml:"event"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	QR       QRConfig       `yaml:"qr"`
	JWT      JWTConfig      `yaml:"jwt"`
	NATS     NATSConfig     `yaml:"nats"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Cache    CacheConfig    `yaml:"cache"`
	CORS     CORSConfig     `yaml:"cors"`
}

type EventConfig struct {
	Tag  string `yaml:"tag"`
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	FromName string `yaml:"from_name"`
}

// Configured reports whether enough SMTP settings exist to send mail.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.User != ""
}

type QRConfig struct {
	SecretKey string `yaml:"secret_key"`
	Size      int    `yaml:"size"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type OutboxConfig struct {
	BatchSize      int             `yaml:"batch_size"`
	MaxAttempts    int             `yaml:"max_attempts"`
	IdleBackoff    []time.Duration `yaml:"idle_backoff"`
	OnceIterations int             `yaml:"once_iterations"`
	HandlerTimeout time.Duration   `yaml:"handler_timeout"`
	NotifyChannel  string          `yaml:"notify_channel"`
	PingInterval   time.Duration   `yaml:"ping_interval"`
	HealthAddr     string          `yaml:"health_addr"`
}

type CacheConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	AttendanceStatsTTL time.Duration `yaml:"attendance_stats_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() Config {
	return Config{
		Env:      EnvDevelopment,
		Port:     "3000",
		LogLevel: "",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "iconcoderz",
			SSLMode:  "disable",
		},
		Event: EventConfig{
			Tag:  "IC2K26",
			ID:   "iconcoderz-2k26",
			Name: "IconCoderz 2K26",
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "IconCoderz 2K26",
		},
		QR: QRConfig{
			SecretKey: "iconcoderz-secret-2026",
			Size:      256,
		},
		JWT: JWTConfig{
			Secret: "srkr-iconcoderz",
		},
		NATS: NATSConfig{
			StreamName:    "ICONCODERZ_EVENTS",
			SubjectPrefix: "iconcoderz.events",
		},
		Outbox: OutboxConfig{
			BatchSize:   5,
			MaxAttempts: 5,
			IdleBackoff: []time.Duration{
				2 * time.Second,
				5 * time.Second,
				15 * time.Second,
				60 * time.Second,
				300 * time.Second,
			},
			OnceIterations: 1000,
			HandlerTimeout: 30 * time.Second,
			NotifyChannel:  "outbox_insert",
			PingInterval:   90 * time.Second,
			HealthAddr:     ":8081",
		},
		Cache: CacheConfig{
			SweepInterval:      60 * time.Second,
			AttendanceStatsTTL: 15 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:5174",
				"http://localhost:3000",
			},
		},
	}
}

// Load reads .env, then the optional YAML file at CONFIG_PATH (default
// config.yaml), then applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	path := getEnv("CONFIG_PATH", "config.yaml")
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Env = getEnv("APP_ENV", c.Env)
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Database.applyEnv()

	c.Event.Tag = getEnv("EVENT_TAG", c.Event.Tag)
	c.Event.ID = getEnv("EVENT_ID", c.Event.ID)

	c.SMTP.Host = getEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getEnvAsInt("SMTP_PORT", c.SMTP.Port)
	c.SMTP.User = getEnv("SMTP_USER", c.SMTP.User)
	c.SMTP.Password = getEnv("SMTP_PASS", c.SMTP.Password)

	c.QR.SecretKey = getEnv("QR_SECRET_KEY", c.QR.SecretKey)
	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Outbox.BatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize)
	c.Outbox.MaxAttempts = getEnvAsInt("OUTBOX_MAX_ATTEMPTS", c.Outbox.MaxAttempts)
	c.Outbox.HandlerTimeout = getEnvAsDuration("OUTBOX_HANDLER_TIMEOUT", c.Outbox.HandlerTimeout)
	c.Outbox.NotifyChannel = getEnv("OUTBOX_NOTIFY_CHANNEL", c.Outbox.NotifyChannel)
	c.Outbox.HealthAddr = getEnv("OUTBOX_HEALTH_ADDR", c.Outbox.HealthAddr)

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("invalid env %q", c.Env)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be greater than 0")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox max attempts must be greater than 0")
	}
	if len(c.Outbox.IdleBackoff) == 0 {
		return fmt.Errorf("outbox idle backoff sequence must not be empty")
	}
	if c.Event.Tag == "" || c.Event.ID == "" {
		return fmt.Errorf("event tag and id are required")
	}
	if c.Env == EnvProduction && c.JWT.Secret == Default().JWT.Secret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// Level resolves the zerolog level for this environment.
func (c *Config) Level() zerolog.Level {
	if c.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
			return lvl
		}
	}
	if c.Env == EnvDevelopment {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// SetupLogging configures the global zerolog logger.
func (c *Config) SetupLogging() {
	if c.Env == EnvDevelopment {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	zerolog.SetGlobalLevel(c.Level())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
