// Package config builds the process configuration once at startup.
//
// Precedence: process environment, then the optional .env file, then the
// defaults registered below. godotenv never overrides a variable that is
// already set, so viper only ever sees the merged environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	keyPort               = "PORT"
	keyAPIHost            = "WA_API_HOST"
	keyAPIPort            = "WA_API_PORT"
	keyAPIUseHTTPS        = "WA_API_USE_HTTPS"
	keyAPIKey             = "WA_API_KEY"
	keyAPITimeout         = "WA_API_TIMEOUT"
	keyStatusTimeout      = "WA_STATUS_TIMEOUT"
	keyStatusPoll         = "WA_STATUS_POLL"
	keyUploadDir          = "WA_UPLOAD_DIR"
	keyMaxUploadMB        = "WA_MAX_UPLOAD_MB"
	keyDefaultCountryCode = "WA_DEFAULT_COUNTRY_CODE"
	keyBreakerFailures    = "WA_BREAKER_FAILURES"
	keyBreakerCooldown    = "WA_BREAKER_COOLDOWN"
	keyRateLimitRPM       = "WA_RATE_LIMIT_RPM"
	keyRateLimitBurst     = "WA_RATE_LIMIT_BURST"
	keyCORSOrigins        = "WA_CORS_ORIGINS"
	keyLogLevel           = "WA_LOG_LEVEL"
	keyLogFormat          = "WA_LOG_FORMAT"
)

// API describes how to reach the remote WhatsApp API.
type API struct {
	Host          string
	Port          int
	UseHTTPS      bool
	Key           string
	Timeout       time.Duration
	StatusTimeout time.Duration

	// BreakerFailures is the number of consecutive transport failures after
	// which sends fail fast. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// BaseURL returns scheme://host:port without a trailing slash.
func (a API) BaseURL() string {
	scheme := "http"
	if a.UseHTTPS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Config is the whole process configuration. It is built once by Load and
// passed by value afterwards.
type Config struct {
	Port int
	API  API

	// StatusPoll is a cron spec for the background status poll; empty means disabled.
	StatusPoll string

	UploadDir          string
	MaxUploadBytes     int64
	DefaultCountryCode string

	RateLimitRPM   int
	RateLimitBurst int
	CORSOrigins    []string

	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, 8080)
	v.SetDefault(keyAPIHost, "localhost")
	v.SetDefault(keyAPIPort, 5000)
	v.SetDefault(keyAPIUseHTTPS, false)
	v.SetDefault(keyAPIKey, "")
	v.SetDefault(keyAPITimeout, 30)
	v.SetDefault(keyStatusTimeout, 5)
	v.SetDefault(keyStatusPoll, "@every 1m")
	v.SetDefault(keyUploadDir, "uploads")
	v.SetDefault(keyMaxUploadMB, 65)
	v.SetDefault(keyDefaultCountryCode, "")
	v.SetDefault(keyBreakerFailures, 5)
	v.SetDefault(keyBreakerCooldown, 30)
	v.SetDefault(keyRateLimitRPM, 0)
	v.SetDefault(keyRateLimitBurst, 20)
	v.SetDefault(keyCORSOrigins, "*")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "json")
}

// Load reads the optional env files (".env" when none are given) and then
// resolves every setting from the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		Port: v.GetInt(keyPort),
		API: API{
			Host:            strings.TrimSpace(v.GetString(keyAPIHost)),
			Port:            v.GetInt(keyAPIPort),
			UseHTTPS:        v.GetBool(keyAPIUseHTTPS),
			Key:             strings.TrimSpace(v.GetString(keyAPIKey)),
			Timeout:         time.Duration(v.GetInt(keyAPITimeout)) * time.Second,
			StatusTimeout:   time.Duration(v.GetInt(keyStatusTimeout)) * time.Second,
			BreakerFailures: uint32(max(v.GetInt(keyBreakerFailures), 0)),
			BreakerCooldown: time.Duration(v.GetInt(keyBreakerCooldown)) * time.Second,
		},
		StatusPoll:         pollSpec(v.GetString(keyStatusPoll)),
		UploadDir:          v.GetString(keyUploadDir),
		MaxUploadBytes:     int64(v.GetInt(keyMaxUploadMB)) << 20,
		DefaultCountryCode: strings.TrimPrefix(strings.TrimSpace(v.GetString(keyDefaultCountryCode)), "+"),
		RateLimitRPM:       v.GetInt(keyRateLimitRPM),
		RateLimitBurst:     v.GetInt(keyRateLimitBurst),
		CORSOrigins:        splitList(v.GetString(keyCORSOrigins)),
		LogLevel:           strings.ToLower(v.GetString(keyLogLevel)),
		LogFormat:          strings.ToLower(v.GetString(keyLogFormat)),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be a valid port", keyPort))
	}
	if c.API.Host == "" {
		errs = append(errs, fmt.Errorf("%s is empty", keyAPIHost))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be a valid port", keyAPIPort))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyAPITimeout))
	}
	if c.API.StatusTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyStatusTimeout))
	}
	if c.API.BreakerFailures > 0 && c.API.BreakerCooldown <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive when the breaker is enabled", keyBreakerCooldown))
	}
	if c.StatusPoll != "" {
		if _, err := cron.ParseStandard(c.StatusPoll); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", keyStatusPoll, err))
		}
	}
	if c.UploadDir == "" {
		errs = append(errs, fmt.Errorf("%s is empty", keyUploadDir))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyMaxUploadMB))
	}
	for _, r := range c.DefaultCountryCode {
		if r < '0' || r > '9' {
			errs = append(errs, fmt.Errorf("%s must contain digits only", keyDefaultCountryCode))
			break
		}
	}
	if c.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", keyRateLimitRPM))
	}
	if c.RateLimitRPM > 0 && c.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive when rate limiting is enabled", keyRateLimitBurst))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", keyLogLevel, err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("%s must be json or console", keyLogFormat))
	}
	return errors.Join(errs...)
}

// pollSpec maps "off" to the empty spec. An empty variable cannot disable the
// poll because viper treats empty environment values as unset.
func pollSpec(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "off") {
		return ""
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
