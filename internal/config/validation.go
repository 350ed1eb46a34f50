// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/cremalink/internal/validate"
)

var httpSchemes = []string{"http", "https"}

// Validate checks a resolved configuration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("logLevel", cfg.LogLevel, []string{"trace", "debug", "info", "warn", "error"})
	if cfg.DataDir != "" {
		v.Directory("dataDir", cfg.DataDir, false)
	}
	if cfg.TokenFile != "" {
		v.Extension("tokenFile", cfg.TokenFile, ".json")
	}

	s := cfg.Server
	v.Host("server.ip", s.IP)
	v.Port("server.port", s.Port)
	v.Duration("server.nudgerPollInterval", s.NudgerPollInterval, time.Hour)
	v.Duration("server.monitorPollInterval", s.MonitorPollInterval, time.Hour)
	v.Duration("server.rekeyInterval", s.RekeyInterval, 24*time.Hour)
	v.Duration("server.deviceRegisterTimeout", s.DeviceRegisterTimeout, 5*time.Minute)
	v.Duration("server.shutdownTimeout", s.ShutdownTimeout, 5*time.Minute)
	v.Range("server.queueMaxSize", s.QueueMaxSize, 1, 100000)
	v.Range("server.logRingSize", s.LogRingSize, 1, 100000)
	v.NonNegative("server.rateLimit", s.RateLimit)
	if s.DeviceRegisterCAPath != "" {
		v.File("server.deviceRegisterCaPath", s.DeviceRegisterCAPath)
	}

	c := cfg.Cloud
	v.URL("cloud.apiUrl", c.APIURL, httpSchemes)
	v.URL("cloud.oauthUrl", c.OAuthURL, httpSchemes)
	v.URL("cloud.gigyaBaseUrl", c.GigyaBaseURL, httpSchemes)
	v.URL("cloud.socializeUrl", c.SocializeURL, httpSchemes)
	v.URL("cloud.accountsUrl", c.AccountsURL, httpSchemes)
	v.URL("cloud.consentUrl", c.ConsentURL, httpSchemes)
	v.Duration("cloud.timeout", c.Timeout, 5*time.Minute)
	v.Duration("cloud.resetTimeout", c.ResetTimeout, time.Hour)
	v.Positive("cloud.failureThreshold", c.FailureThreshold)
	v.Custom("cloud.rateLimit", c.RateLimit, func(any) error {
		if c.RateLimit <= 0 {
			return fmt.Errorf("rate limit must be positive, got %v", c.RateLimit)
		}
		return nil
	})

	lc := cfg.Local
	v.URL("local.serverUrl", lc.ServerURL, httpSchemes)
	v.OneOf("local.deviceScheme", lc.DeviceScheme, httpSchemes)
	v.Duration("local.timeout", lc.Timeout, 5*time.Minute)

	if cfg.DeviceMaps.OverlayDir != "" {
		v.Directory("deviceMaps.overlayDir", cfg.DeviceMaps.OverlayDir, true)
	}

	h := cfg.History
	if h.InfluxURL != "" {
		v.URL("history.influxUrl", h.InfluxURL, httpSchemes)
		v.NotEmpty("history.influxOrg", h.InfluxOrg)
		v.NotEmpty("history.influxBucket", h.InfluxBucket)
	}

	if cfg.Cache.RedisAddr != "" {
		v.Host("cache.redisAddr", cfg.Cache.RedisAddr)
		v.NonNegative("cache.redisDb", cfg.Cache.RedisDB)
	}
	v.Duration("cache.ttl", cfg.Cache.TTL, time.Hour)

	if cfg.Metrics.Enabled {
		v.Host("metrics.addr", cfg.Metrics.Addr)
	}

	if t := cfg.Telemetry; t.Enabled {
		v.OneOf("telemetry.exporter", t.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", t.Endpoint)
		v.Custom("telemetry.samplingRate", t.SamplingRate, func(any) error {
			if t.SamplingRate < 0 || t.SamplingRate > 1 {
				return fmt.Errorf("sampling rate must be between 0 and 1, got %v", t.SamplingRate)
			}
			return nil
		})
	}

	return v.Err()
}

// ValidateLogin checks the credentials needed for the Gigya login flow.
func (c CloudConfig) ValidateLogin() error {
	v := validate.New()
	v.NotEmpty("cloud.appId", c.AppID)
	v.NotEmpty("cloud.appSecret", c.AppSecret)
	v.NotEmpty("cloud.gigyaApiKey", c.GigyaAPIKey)
	v.NotEmpty("cloud.gigyaClientId", c.GigyaClientID)
	v.NotEmpty("cloud.gigyaClientSecret", c.GigyaClientSecret)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	return nil
}
