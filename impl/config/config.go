package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// tlsCfg holds TLS configuration for origin access
type tlsCfg struct {
	Cert               string `yaml:"cert"`
	Key                string `yaml:"key"`
	CA                 string `yaml:"ca"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// OriginConfig configures access to the origin web server that hosts the
// application shell. All network fetches go there.
type OriginConfig struct {
	Url string `yaml:"url"`
	Tls tlsCfg `yaml:"tls"`
}

// ServerTlsConfig configures how the gateway presents itself to clients. ClientAuth
// may be "none" or "verify".
type ServerTlsConfig struct {
	Cert       string `yaml:"cert"`
	Key        string `yaml:"key"`
	CA         string `yaml:"ca"`
	ClientAuth string `yaml:"clientAuth"`
}

// ListConfig configures the list sub-command
type ListConfig struct {
	Header bool `yaml:"header"`
}

// Configuration represents the totality of configuration knobs and dials for the gateway.
type Configuration struct {
	LogLevel        string          `yaml:"logLevel"`
	LogFile         string          `yaml:"logFile"`
	ConfigFile      string          `yaml:"configFile"`
	CachePath       string          `yaml:"cachePath"`
	StoreType       string          `yaml:"storeType"`
	ManifestFile    string          `yaml:"manifestFile"`
	WatchManifest   bool            `yaml:"watchManifest"`
	Port            int64           `yaml:"port"`
	Health          int64           `yaml:"health"`
	Metrics         int64           `yaml:"metrics"`
	FetchTimeout    int64           `yaml:"fetchTimeout"`
	SyncConcurrency int64           `yaml:"syncConcurrency"`
	SyncRateLimit   int64           `yaml:"syncRateLimit"`
	HoldNewVersions bool            `yaml:"holdNewVersions"`
	Origin          OriginConfig    `yaml:"origin"`
	ServerTlsConfig ServerTlsConfig `yaml:"serverTlsConfig"`
	ListConfig      ListConfig      `yaml:"listConfig"`
}

// FromCmdLine has a flag for every command-line option. The parsing code
// sets the flag to true if the option was explicitly provided on the command
// line by the user.
type FromCmdLine struct {
	Command         string
	LogLevel        bool
	LogFile         bool
	ConfigFile      bool
	CachePath       bool
	StoreType       bool
	ManifestFile    bool
	WatchManifest   bool
	Port            bool
	Health          bool
	Metrics         bool
	FetchTimeout    bool
	SyncConcurrency bool
	SyncRateLimit   bool
	HoldNewVersions bool
	Origin          bool
	ListConfig      bool
}

var (
	config   Configuration
	emptyTls = tlsCfg{}
)

func GetLogLevel() string {
	return config.LogLevel
}

func GetLogFile() string {
	return config.LogFile
}

func GetConfigFile() string {
	return config.ConfigFile
}

func GetCachePath() string {
	return config.CachePath
}

func GetStoreType() string {
	return config.StoreType
}

func GetManifestFile() string {
	return config.ManifestFile
}

func GetWatchManifest() bool {
	return config.WatchManifest
}

func GetPort() int64 {
	return config.Port
}

func GetHealth() int64 {
	return config.Health
}

func GetMetrics() int64 {
	return config.Metrics
}

func GetFetchTimeout() int64 {
	return config.FetchTimeout
}

func GetSyncConcurrency() int64 {
	return config.SyncConcurrency
}

func GetSyncRateLimit() int64 {
	return config.SyncRateLimit
}

// GetHoldNewVersions returns true if a newly installed version should wait for an
// explicit skipWaiting message before it activates.
func GetHoldNewVersions() bool {
	return config.HoldNewVersions
}

func GetOrigin() OriginConfig {
	return config.Origin
}

func GetServerTlsCfg() ServerTlsConfig {
	return config.ServerTlsConfig
}

func GetListConfig() ListConfig {
	return config.ListConfig
}

// Load loads the passed configuration file into the configuration struct
func Load(configFile string) error {
	if _, err := os.Stat(configFile); err != nil {
		return fmt.Errorf("unable to stat configuration file: %s", configFile)
	}
	if contents, err := os.ReadFile(configFile); err != nil {
		return fmt.Errorf("error reading configuration file: %s", configFile)
	} else if err := SetConfigFromStr(contents); err != nil {
		return fmt.Errorf("error parsing configuration file: %s, the error was: %s", configFile, err)
	}
	return nil
}

// Get gets the current configuration
func Get() Configuration {
	return config
}

// Set replaces the configuration with the passed configuration
func Set(cfg Configuration) {
	config = cfg
}

// SetConfigFromStr parses the yaml input and sets the configuration from it
func SetConfigFromStr(configBytes []byte) error {
	var cfg Configuration
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return err
	}
	config = cfg
	return nil
}

// OriginTls builds a client TLS configuration for the origin from the 'origin.tls'
// section of the configuration. If that section is empty then nil is returned and the
// fetcher uses the Go defaults (OS trust store, no client cert).
func OriginTls() (*tls.Config, error) {
	cfg := config.Origin.Tls
	if cfg == emptyTls {
		return nil, nil
	}
	var cp *x509.CertPool
	clientCerts := []tls.Certificate{}
	if cfg.CA != "" {
		caCert, err := os.ReadFile(cfg.CA)
		if err != nil {
			return nil, fmt.Errorf("unable to load origin CA from file: %s", cfg.CA)
		}
		cp = x509.NewCertPool()
		if !cp.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in origin CA file: %s", cfg.CA)
		}
	}
	if cfg.Cert != "" && cfg.Key != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("unable to load origin client cert and/or key from files: cert: %s, key: %s", cfg.Cert, cfg.Key)
		}
		clientCerts = []tls.Certificate{cert}
	}
	return &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RootCAs:            cp,
		Certificates:       clientCerts,
	}, nil
}
