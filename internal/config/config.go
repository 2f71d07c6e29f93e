// internal/config/config.go
//
// Package config resolves server settings. Defaults are overlaid by an
// optional HCL file, then by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the complete server configuration.
type Config struct {
	Address       string `hcl:"address,optional"`
	LogLevel      string `hcl:"log_level,optional"`
	RedisAddr     string `hcl:"redis_addr,optional"`
	RedisDB       int    `hcl:"redis_db,optional"`
	RedisPassword string `hcl:"redis_password,optional"`

	TurnSeconds   int    `hcl:"turn_seconds,optional"`
	BotDelayMs    int    `hcl:"bot_delay_ms,optional"`
	RoomTTL       string `hcl:"room_ttl,optional"`
	RatingTTL     string `hcl:"rating_ttl,optional"`
	SweepInterval string `hcl:"sweep_interval,optional"`

	TokenExpire    string `hcl:"token_expire,optional"`
	PrivateKeyPath string `hcl:"private_key_path,optional"`
	PublicKeyPath  string `hcl:"public_key_path,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Address:       ":8080",
		LogLevel:      "info",
		RedisAddr:     "localhost:6379",
		TurnSeconds:   30,
		BotDelayMs:    1500,
		RoomTTL:       "2h",
		RatingTTL:     "8760h",
		SweepInterval: "5s",
		TokenExpire:   "never",
	}
}

// Load builds a configuration from defaults, the HCL file at path (skipped
// when empty or missing) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fromFile, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if fromFile != nil {
			cfg = fromFile
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile reads KEY=VALUE pairs into the environment without replacing
// variables that are already set.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	cfg.fillDefaults()
	return &cfg, nil
}

// fillDefaults sets every zero field to its default.
func (c *Config) fillDefaults() {
	d := Default()
	setString(&c.Address, d.Address)
	setString(&c.LogLevel, d.LogLevel)
	setString(&c.RedisAddr, d.RedisAddr)
	setString(&c.RoomTTL, d.RoomTTL)
	setString(&c.RatingTTL, d.RatingTTL)
	setString(&c.SweepInterval, d.SweepInterval)
	setString(&c.TokenExpire, d.TokenExpire)
	if c.TurnSeconds == 0 {
		c.TurnSeconds = d.TurnSeconds
	}
	if c.BotDelayMs == 0 {
		c.BotDelayMs = d.BotDelayMs
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// ApplyEnv overrides fields from environment variables looked up by lookup.
// PORT is honoured as a shorthand for ":PORT" when LISTEN_ADDR is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	getEnv := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	getEnvInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.Address = ":" + port
	}
	getEnv("LISTEN_ADDR", &c.Address)
	getEnv("LOG_LEVEL", &c.LogLevel)
	getEnv("REDIS_ADDR", &c.RedisAddr)
	getEnvInt("REDIS_DB", &c.RedisDB)
	getEnv("REDIS_PASSWORD", &c.RedisPassword)
	getEnvInt("TURN_SECONDS", &c.TurnSeconds)
	getEnvInt("BOT_DELAY_MS", &c.BotDelayMs)
	getEnv("ROOM_TTL", &c.RoomTTL)
	getEnv("RATING_TTL", &c.RatingTTL)
	getEnv("SWEEP_INTERVAL", &c.SweepInterval)
	getEnv("TOKEN_EXPIRE", &c.TokenExpire)
	getEnv("JWT_PRIVATE_KEY_PATH", &c.PrivateKeyPath)
	getEnv("JWT_PUBLIC_KEY_PATH", &c.PublicKeyPath)
}

// Validate checks that every value parses.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.TurnSeconds <= 0 {
		return fmt.Errorf("turn_seconds must be positive, got %d", c.TurnSeconds)
	}
	if c.BotDelayMs < 0 {
		return fmt.Errorf("bot_delay_ms must not be negative, got %d", c.BotDelayMs)
	}
	for name, v := range map[string]string{
		"room_ttl":       c.RoomTTL,
		"rating_ttl":     c.RatingTTL,
		"sweep_interval": c.SweepInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}
	if (c.PrivateKeyPath == "") != (c.PublicKeyPath == "") {
		return errors.New("private_key_path and public_key_path must be set together")
	}
	return nil
}

// Level is the parsed log level.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (c *Config) TurnDuration() time.Duration {
	return time.Duration(c.TurnSeconds) * time.Second
}

func (c *Config) BotDelay() time.Duration {
	return time.Duration(c.BotDelayMs) * time.Millisecond
}

func (c *Config) RoomTTLDuration() time.Duration { return mustDuration(c.RoomTTL) }

func (c *Config) RatingTTLDuration() time.Duration { return mustDuration(c.RatingTTL) }

func (c *Config) SweepIntervalDuration() time.Duration { return mustDuration(c.SweepInterval) }

// mustDuration assumes Validate has passed.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
