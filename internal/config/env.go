// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/cremalink/internal/log"
)

func envLogger() zerolog.Logger {
	return xglog.WithComponent(xglog.ComponentConfig)
}

func isSensitiveEnv(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"token", "password", "secret", "key"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// lookup returns the raw value when the variable is set and non-empty.
func lookup(logger zerolog.Logger, key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	if strings.TrimSpace(v) == "" {
		logger.Debug().Str("key", key).Str("source", "default").
			Msg("using default value (environment variable is empty)")
		return "", false
	}
	return v, true
}

func logEnv(logger zerolog.Logger, key, value string) {
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitiveEnv(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", value)
	}
	ev.Msg("using environment variable")
}

func logInvalid(logger zerolog.Logger, key, value, kind string) {
	logger.Warn().Str("key", key).Str("value", value).
		Msgf("invalid %s in environment variable, using default", kind)
}

// ParseString reads a string from the environment or returns def.
func ParseString(key, def string) string {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	logEnv(logger, key, v)
	return v
}

// ParseInt reads an integer, falling back to def on parse errors.
func ParseInt(key string, def int) int {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logInvalid(logger, key, v, "integer")
		return def
	}
	logEnv(logger, key, v)
	return i
}

// ParseFloat reads a float, falling back to def on parse errors.
func ParseFloat(key string, def float64) float64 {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logInvalid(logger, key, v, "float")
		return def
	}
	logEnv(logger, key, v)
	return f
}

// ParseBool accepts true/false, 1/0, yes/no and on/off (case-insensitive).
func ParseBool(key string, def bool) bool {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		logEnv(logger, key, v)
		return true
	case "false", "0", "no", "off":
		logEnv(logger, key, v)
		return false
	}
	logInvalid(logger, key, v, "boolean")
	return def
}

// ParseDuration reads a Go duration ("5s"). A bare number is taken as
// seconds, so "1.5" and "60" work as they did for the LAN server.
func ParseDuration(key string, def time.Duration) time.Duration {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	d, err := parseSeconds(v)
	if err != nil {
		logInvalid(logger, key, v, "duration")
		return def
	}
	logEnv(logger, key, v)
	return d
}

func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// ParseList reads a comma-separated list, dropping empty items.
func ParseList(key string, def []string) []string {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	logEnv(logger, key, v)
	return out
}
