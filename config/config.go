package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type BackendConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	SSL                      bool   `yaml:"ssl"`
	SSLCert                  string `yaml:"ssl_cert"`
	SSLKey                   string `yaml:"ssl_key"`
	LogLevel                 string `yaml:"log_level"`
	MainLogFile              string `yaml:"main_log_file"`
	AccessLog                string `yaml:"access_log"`
	AccessLogPath            string `yaml:"access_log_path"`
	EnableAuthorization      bool   `yaml:"enable_authorization,omitempty"`
	AcceptUserAgentPrefix    string `yaml:"accept_user_agent_prefix,omitempty"`
	AcceptAuthorizationToken string `yaml:"accept_authorization_token,omitempty"`
	BodyLimitMB              int    `yaml:"body_limit_mb,omitempty"`
}

// KeyRule assigns a key to files whose name matches Pattern.
type KeyRule struct {
	Pattern string `yaml:"pattern"`
	Key     string `yaml:"key"`
	Subkey  string `yaml:"subkey,omitempty"`
}

type DecodeConfig struct {
	DefaultKey        string    `yaml:"default_key,omitempty"`
	DefaultSubkey     string    `yaml:"default_subkey,omitempty"`
	SkipCorruptFrames bool      `yaml:"skip_corrupt_frames,omitempty"`
	KeyRules          []KeyRule `yaml:"key_rules,omitempty"`
	USMKey            string    `yaml:"usm_key,omitempty"`
}

type RemoteConfig struct {
	Proxy          string `yaml:"proxy,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	UserAgent      string `yaml:"user_agent,omitempty"`
}

type StorageConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Endpoint          string `yaml:"endpoint"`
	Region            string `yaml:"region"`
	Bucket            string `yaml:"bucket"`
	AccessKeyID       string `yaml:"access_key_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	PathStyle         bool   `yaml:"path_style,omitempty"`
	Prefix            string `yaml:"prefix,omitempty"`
	ConcurrentUploads int    `yaml:"concurrent_uploads,omitempty"`
}

type ToolConfig struct {
	FFMPEGPath string `yaml:"ffmpeg_path,omitempty"`
}

type Config struct {
	Backend BackendConfig `yaml:"backend,omitempty"`
	Decode  DecodeConfig  `yaml:"decode,omitempty"`
	Remote  RemoteConfig  `yaml:"remote,omitempty"`
	Storage StorageConfig `yaml:"storage,omitempty"`
	Tools   ToolConfig    `yaml:"tool,omitempty"`
}

var Version = "v1.0.0-dev"

// Load reads the YAML file at path and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Backend.Port == 0 {
		c.Backend.Port = 8080
	}
	if c.Backend.LogLevel == "" {
		c.Backend.LogLevel = "INFO"
	}
	if c.Backend.BodyLimitMB <= 0 {
		c.Backend.BodyLimitMB = 64
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = 30
	}
	if c.Storage.ConcurrentUploads <= 0 {
		c.Storage.ConcurrentUploads = 4
	}
	if c.Tools.FFMPEGPath == "" {
		c.Tools.FFMPEGPath = "ffmpeg"
	}
}

// BodyLimit is the request body limit in bytes.
func (c *Config) BodyLimit() int {
	return c.Backend.BodyLimitMB * 1024 * 1024
}
