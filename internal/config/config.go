// Package config loads the bot settings from a .env file and the environment.
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
)

const (
	DefaultDatabase       = "file:proxybot.db?_foreign_keys=on"
	DefaultSessionDB      = "file:bot.db?_foreign_keys=on"
	DefaultPrefix         = "pf;"
	DefaultMessageLimit   = 2000
	DefaultImageMaxBytes  = 1_000_000
	DefaultImageTimeout   = 10 * time.Second
	DefaultHandlerTimeout = 60 * time.Second
	DefaultLogLevel       = "info"
)

// Config holds every setting the bot reads.
type Config struct {
	Database       string
	SessionDB      string
	Prefix         string
	MessageLimit   int
	ImageMaxBytes  int64
	ImageTimeout   time.Duration
	HandlerTimeout time.Duration
	LogLevel       string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:       DefaultDatabase,
		SessionDB:      DefaultSessionDB,
		Prefix:         DefaultPrefix,
		MessageLimit:   DefaultMessageLimit,
		ImageMaxBytes:  DefaultImageMaxBytes,
		ImageTimeout:   DefaultImageTimeout,
		HandlerTimeout: DefaultHandlerTimeout,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads envFile into the process environment, then builds a Config
// from it. An empty envFile means ".env" and tolerates its absence.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, falling back to Default for unset
// variables.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errList []error
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PROXYBOT_DB"); ok {
		c.Database = v
	}
	if v, ok := get("PROXYBOT_SESSION_DB"); ok {
		c.SessionDB = v
	}
	if v, ok := get("PROXYBOT_PREFIX"); ok {
		c.Prefix = v
	}
	if v, ok := get("PROXYBOT_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("PROXYBOT_MESSAGE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("PROXYBOT_MESSAGE_LIMIT: %w", err))
		}
		c.MessageLimit = n
	}
	if v, ok := get("PROXYBOT_IMAGE_MAX_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errList = append(errList, fmt.Errorf("PROXYBOT_IMAGE_MAX_BYTES: %w", err))
		}
		c.ImageMaxBytes = n
	}
	for key, dst := range map[string]*time.Duration{
		"PROXYBOT_IMAGE_TIMEOUT":   &c.ImageTimeout,
		"PROXYBOT_HANDLER_TIMEOUT": &c.HandlerTimeout,
	} {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", key, err))
			}
			*dst = d
		}
	}
	if err := errors.Join(errList...); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Validate checks the ranges of every setting.
func (c Config) Validate() error {
	var errList []error
	if c.Database == "" {
		errList = append(errList, errors.New("database DSN must not be empty"))
	}
	if c.SessionDB == "" {
		errList = append(errList, errors.New("session database DSN must not be empty"))
	}
	if strings.TrimSpace(c.Prefix) == "" {
		errList = append(errList, errors.New("command prefix must not be blank"))
	}
	if c.MessageLimit <= 0 {
		errList = append(errList, fmt.Errorf("message limit must be positive, got %d", c.MessageLimit))
	}
	if c.ImageMaxBytes <= 0 {
		errList = append(errList, fmt.Errorf("image size limit must be positive, got %d", c.ImageMaxBytes))
	}
	if c.ImageTimeout <= 0 {
		errList = append(errList, fmt.Errorf("image timeout must be positive, got %s", c.ImageTimeout))
	}
	if c.HandlerTimeout <= 0 {
		errList = append(errList, fmt.Errorf("handler timeout must be positive, got %s", c.HandlerTimeout))
	}
	return errors.Join(errList...)
}
