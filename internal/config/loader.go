// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default endpoints of the EU cloud.
const (
	DefaultAylaAPIURL    = "https://ads-eu.aylanetworks.com/apiv1"
	DefaultAylaOAuthURL  = "https://user-field-eu.aylanetworks.com"
	DefaultGigyaBaseURL  = "https://fidm.eu1.gigya.com"
	DefaultSocializeURL  = "https://socialize.eu1.gigya.com"
	DefaultAccountsURL   = "https://accounts.eu1.gigya.com"
	DefaultConsentURL    = "https://aylaopenid.delonghigroup.com"
	DefaultGigyaSDKBuild = "16650"
	DefaultServerPort    = 10280
	DefaultTokenFileName = "token.json"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	envFile    string
	version    string

	// ConsumedEnvKeys records every variable the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		envFile:         ".env",
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// WithEnvFile sets the dotenv file; an empty path disables dotenv loading.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// ConfigPath returns the file the loader reads, if any.
func (l *Loader) ConfigPath() string { return l.configPath }

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envList(key string, def []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, def)
}

// Load resolves the configuration: dotenv, defaults, file, ENV, validation.
func (l *Loader) Load() (AppConfig, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("load %s: %w", l.envFile, err)
		}
	}

	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}
	if cfg.TokenFile == "" && cfg.DataDir != "" {
		cfg.TokenFile = filepath.Join(cfg.DataDir, DefaultTokenFileName)
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Server: ServerConfig{
			IP:                    "127.0.0.1",
			Port:                  DefaultServerPort,
			NudgerPollInterval:    time.Second,
			MonitorPollInterval:   5 * time.Second,
			RekeyInterval:         60 * time.Second,
			QueueMaxSize:          200,
			LogRingSize:           200,
			DeviceRegisterTimeout: 10 * time.Second,
			EnableDeviceRegister:  true,
			EnableNudgerJob:       true,
			EnableMonitorJob:      true,
			EnableRekeyJob:        true,
			RateLimit:             600,
			ShutdownTimeout:       10 * time.Second,
		},
		Cloud: CloudConfig{
			APIURL:           DefaultAylaAPIURL,
			OAuthURL:         DefaultAylaOAuthURL,
			GigyaSDKBuild:    DefaultGigyaSDKBuild,
			GigyaBaseURL:     DefaultGigyaBaseURL,
			SocializeURL:     DefaultSocializeURL,
			AccountsURL:      DefaultAccountsURL,
			ConsentURL:       DefaultConsentURL,
			Timeout:          15 * time.Second,
			RateLimit:        5,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Local: LocalConfig{
			ServerURL:     "http://" + joinHostPort("127.0.0.1", DefaultServerPort),
			DeviceScheme:  "http",
			AutoConfigure: true,
			Timeout:       10 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9105",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// loadFile decodes a YAML file onto cfg with STRICT parsing: unknown fields
// are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString("CREMALINK_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("CREMALINK_LOG_LEVEL", cfg.LogLevel)
	cfg.TokenFile = l.envString("CREMALINK_TOKEN_FILE", cfg.TokenFile)

	s := &cfg.Server
	s.IP = l.envString("SERVER_IP", s.IP)
	s.Port = l.envInt("SERVER_PORT", s.Port)
	s.NudgerPollInterval = l.envDuration("NUDGER_POLL_INTERVAL", s.NudgerPollInterval)
	s.MonitorPollInterval = l.envDuration("MONITOR_POLL_INTERVAL", s.MonitorPollInterval)
	s.RekeyInterval = l.envDuration("REKEY_INTERVAL_SECONDS", s.RekeyInterval)
	s.QueueMaxSize = l.envInt("QUEUE_MAX_SIZE", s.QueueMaxSize)
	s.LogRingSize = l.envInt("LOG_RING_SIZE", s.LogRingSize)
	s.DeviceRegisterVerify = l.envBool("DEVICE_REGISTER_VERIFY", s.DeviceRegisterVerify)
	s.DeviceRegisterCAPath = l.envString("DEVICE_REGISTER_CA_PATH", s.DeviceRegisterCAPath)
	s.DeviceRegisterTimeout = l.envDuration("DEVICE_REGISTER_TIMEOUT", s.DeviceRegisterTimeout)
	s.EnableDeviceRegister = l.envBool("ENABLE_DEVICE_REGISTER", s.EnableDeviceRegister)
	s.EnableNudgerJob = l.envBool("ENABLE_NUDGER_JOB", s.EnableNudgerJob)
	s.EnableMonitorJob = l.envBool("ENABLE_MONITOR_JOB", s.EnableMonitorJob)
	s.EnableRekeyJob = l.envBool("ENABLE_REKEY_JOB", s.EnableRekeyJob)
	s.FixedRandom2 = l.envString("FIXED_RANDOM_2", s.FixedRandom2)
	s.FixedTime2 = l.envString("FIXED_TIME_2", s.FixedTime2)
	s.RateLimit = l.envInt("CREMALINK_RATE_LIMIT", s.RateLimit)
	s.CORSOrigins = l.envList("CREMALINK_CORS_ORIGINS", s.CORSOrigins)
	s.ShutdownTimeout = l.envDuration("CREMALINK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	c := &cfg.Cloud
	c.APIURL = l.envString("CREMALINK_AYLA_API_URL", c.APIURL)
	c.OAuthURL = l.envString("CREMALINK_AYLA_OAUTH_URL", c.OAuthURL)
	c.AppID = l.envString("CREMALINK_AYLA_APP_ID", c.AppID)
	c.AppSecret = l.envString("CREMALINK_AYLA_APP_SECRET", c.AppSecret)
	c.GigyaAPIKey = l.envString("CREMALINK_GIGYA_API_KEY", c.GigyaAPIKey)
	c.GigyaClientID = l.envString("CREMALINK_GIGYA_CLIENT_ID", c.GigyaClientID)
	c.GigyaClientSecret = l.envString("CREMALINK_GIGYA_CLIENT_SECRET", c.GigyaClientSecret)
	c.GigyaSDKBuild = l.envString("CREMALINK_GIGYA_SDK_BUILD", c.GigyaSDKBuild)
	c.GigyaBaseURL = l.envString("CREMALINK_GIGYA_BASE_URL", c.GigyaBaseURL)
	c.SocializeURL = l.envString("CREMALINK_GIGYA_SOCIALIZE_URL", c.SocializeURL)
	c.AccountsURL = l.envString("CREMALINK_GIGYA_ACCOUNTS_URL", c.AccountsURL)
	c.ConsentURL = l.envString("CREMALINK_GIGYA_CONSENT_URL", c.ConsentURL)
	c.Timeout = l.envDuration("CREMALINK_CLOUD_TIMEOUT", c.Timeout)
	c.RateLimit = l.envFloat("CREMALINK_CLOUD_RATE_LIMIT", c.RateLimit)
	c.FailureThreshold = l.envInt("CREMALINK_CLOUD_FAILURE_THRESHOLD", c.FailureThreshold)
	c.ResetTimeout = l.envDuration("CREMALINK_CLOUD_RESET_TIMEOUT", c.ResetTimeout)

	lc := &cfg.Local
	lc.ServerURL = l.envString("CREMALINK_LOCAL_SERVER_URL", lc.ServerURL)
	lc.DeviceScheme = l.envString("CREMALINK_DEVICE_SCHEME", lc.DeviceScheme)
	lc.AutoConfigure = l.envBool("CREMALINK_AUTO_CONFIGURE", lc.AutoConfigure)
	lc.Timeout = l.envDuration("CREMALINK_LOCAL_TIMEOUT", lc.Timeout)

	cfg.DeviceMaps.OverlayDir = l.envString("CREMALINK_DEVICE_MAPS_DIR", cfg.DeviceMaps.OverlayDir)
	cfg.DeviceMaps.Watch = l.envBool("CREMALINK_DEVICE_MAPS_WATCH", cfg.DeviceMaps.Watch)

	h := &cfg.History
	h.SQLitePath = l.envString("CREMALINK_HISTORY_SQLITE", h.SQLitePath)
	h.InfluxURL = l.envString("CREMALINK_INFLUX_URL", h.InfluxURL)
	h.InfluxToken = l.envString("CREMALINK_INFLUX_TOKEN", h.InfluxToken)
	h.InfluxOrg = l.envString("CREMALINK_INFLUX_ORG", h.InfluxOrg)
	h.InfluxBucket = l.envString("CREMALINK_INFLUX_BUCKET", h.InfluxBucket)

	cc := &cfg.Cache
	cc.RedisAddr = l.envString("CREMALINK_REDIS_ADDR", cc.RedisAddr)
	cc.RedisPassword = l.envString("CREMALINK_REDIS_PASSWORD", cc.RedisPassword)
	cc.RedisDB = l.envInt("CREMALINK_REDIS_DB", cc.RedisDB)
	cc.TTL = l.envDuration("CREMALINK_CACHE_TTL", cc.TTL)

	cfg.Metrics.Enabled = l.envBool("CREMALINK_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Addr = l.envString("CREMALINK_METRICS_ADDR", cfg.Metrics.Addr)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("CREMALINK_OTEL_ENABLED", t.Enabled)
	t.Exporter = l.envString("CREMALINK_OTEL_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("CREMALINK_OTEL_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("CREMALINK_OTEL_SAMPLING_RATE", t.SamplingRate)
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
