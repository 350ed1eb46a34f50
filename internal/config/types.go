// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved configuration.
type AppConfig struct {
	Version   string `yaml:"-"`
	DataDir   string `yaml:"dataDir"`
	LogLevel  string `yaml:"logLevel"`
	TokenFile string `yaml:"tokenFile"`

	Server     ServerConfig     `yaml:"server"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Local      LocalConfig      `yaml:"local"`
	DeviceMaps DeviceMapsConfig `yaml:"deviceMaps"`
	History    HistoryConfig    `yaml:"history"`
	Cache      CacheConfig      `yaml:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig configures the LAN server that the machine talks to.
type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`

	NudgerPollInterval  time.Duration `yaml:"nudgerPollInterval"`
	MonitorPollInterval time.Duration `yaml:"monitorPollInterval"`
	RekeyInterval       time.Duration `yaml:"rekeyInterval"`

	QueueMaxSize int `yaml:"queueMaxSize"`
	LogRingSize  int `yaml:"logRingSize"`

	DeviceRegisterVerify  bool          `yaml:"deviceRegisterVerify"`
	DeviceRegisterCAPath  string        `yaml:"deviceRegisterCaPath"`
	DeviceRegisterTimeout time.Duration `yaml:"deviceRegisterTimeout"`

	EnableDeviceRegister bool `yaml:"enableDeviceRegister"`
	EnableNudgerJob      bool `yaml:"enableNudgerJob"`
	EnableMonitorJob     bool `yaml:"enableMonitorJob"`
	EnableRekeyJob       bool `yaml:"enableRekeyJob"`

	// Determinism hooks for protocol tests.
	FixedRandom2 string `yaml:"fixedRandom2"`
	FixedTime2   string `yaml:"fixedTime2"`

	RateLimit       int           `yaml:"rateLimit"` // control API requests per minute per client, 0 disables
	CORSOrigins     []string      `yaml:"corsOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.IP, s.Port)
}

// CloudConfig holds the Ayla and Gigya endpoints and app credentials.
type CloudConfig struct {
	APIURL    string `yaml:"apiUrl"`
	OAuthURL  string `yaml:"oauthUrl"`
	AppID     string `yaml:"appId"`
	AppSecret string `yaml:"appSecret"`

	GigyaAPIKey       string `yaml:"gigyaApiKey"`
	GigyaClientID     string `yaml:"gigyaClientId"`
	GigyaClientSecret string `yaml:"gigyaClientSecret"`
	GigyaSDKBuild     string `yaml:"gigyaSdkBuild"`
	GigyaBaseURL      string `yaml:"gigyaBaseUrl"`
	SocializeURL      string `yaml:"socializeUrl"`
	AccountsURL       string `yaml:"accountsUrl"`
	ConsentURL        string `yaml:"consentUrl"`

	Timeout          time.Duration `yaml:"timeout"`
	RateLimit        float64       `yaml:"rateLimit"` // requests per second
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// LocalConfig configures clients of a running LAN server.
type LocalConfig struct {
	ServerURL     string        `yaml:"serverUrl"`
	DeviceScheme  string        `yaml:"deviceScheme"`
	AutoConfigure bool          `yaml:"autoConfigure"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DeviceMapsConfig points at an optional overlay directory of device maps.
type DeviceMapsConfig struct {
	OverlayDir string `yaml:"overlayDir"`
	Watch      bool   `yaml:"watch"`
}

// HistoryConfig selects where monitor snapshots are recorded.
type HistoryConfig struct {
	SQLitePath   string `yaml:"sqlitePath"`
	InfluxURL    string `yaml:"influxUrl"`
	InfluxToken  string `yaml:"influxToken"`
	InfluxOrg    string `yaml:"influxOrg"`
	InfluxBucket string `yaml:"influxBucket"`
}

// CacheConfig configures the property snapshot cache.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDb"`
	TTL           time.Duration `yaml:"ttl"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
