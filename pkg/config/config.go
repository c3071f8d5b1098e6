/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the configuration file
const (
	EnvFilePrefix   = "FILE_PREFIX"
	EnvXfdDirectory = "XFD_DIRECTORY"
	EnvLicenseFile  = "VISION_LICENSE_FILE"
)

// DefaultLicenseFile is looked up in the working directory when no license
// path is configured
const DefaultLicenseFile = "vision.vlc"

// ErrLicenseNotFound is returned by ResolveLicense
var ErrLicenseNotFound = errors.New("cannot find any license file")

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the visionfs configuration
type Config struct {
	DataDir         string  `yaml:"data_dir"`
	FilePrefix      string  `yaml:"file_prefix"` // Search path for data files (OS path list)
	XfdDirectory    string  `yaml:"xfd_directory"`
	LicenseFilePath string  `yaml:"license_file"`
	Lock            Lock    `yaml:"lock"`
	Server          Server  `yaml:"server"`
	Logging         Logging `yaml:"logging"`
}

// Lock configures the gate around engine calls
type Lock struct {
	Path    string        `yaml:"path"` // Advisory lock file shared by every process; empty = in-process only
	Timeout time.Duration `yaml:"timeout"`
}

// Server contains REST server configuration
type Server struct {
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:      "./data",
		FilePrefix:   "./data",
		XfdDirectory: "./xfd",
		Lock: Lock{
			Timeout: time.Second,
		},
		Server: Server{
			Port:   8080,
			Bind:   "127.0.0.1",
			APIKey: "auto",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveConfig atomically writes the configuration with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := atomic.WriteFile(configPath, bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	if err := os.Chmod(configPath, 0600); err != nil {
		return errors.Wrap(err, "failed to secure config file")
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "failed to generate secure key")
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates and saves a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
		config.FilePrefix = dataDir
	}

	apiKey, err := GenerateSecureKey(32)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate API key")
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save bootstrap config")
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./visionfs.yaml"
	}

	configDir := filepath.Join(homeDir, ".config", "visionfs")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

// ApplyEnv overrides file locations with the environment, when set
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvFilePrefix); v != "" {
		c.FilePrefix = v
	}
	if v := os.Getenv(EnvXfdDirectory); v != "" {
		c.XfdDirectory = v
	}
	if v := os.Getenv(EnvLicenseFile); v != "" {
		c.LicenseFilePath = v
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for values the program cannot run with
func (c *Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = errors.CombineErrors(errs, errors.Wrap(ErrInvalidConfig, "data_dir is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = errors.CombineErrors(errs, errors.Wrapf(ErrInvalidConfig, "server.port %d out of range", c.Server.Port))
	}
	if c.Lock.Timeout < 0 {
		errs = errors.CombineErrors(errs, errors.Wrapf(ErrInvalidConfig, "lock.timeout %s is negative", c.Lock.Timeout))
	}
	if !logLevels[strings.ToLower(c.Logging.Level)] {
		errs = errors.CombineErrors(errs, errors.Wrapf(ErrInvalidConfig, "logging.level %q unknown", c.Logging.Level))
	}
	return errs
}

// searchPath returns the directories of the file prefix, or the working
// directory when no prefix is set
func (c *Config) searchPath() []string {
	var dirs []string
	for _, d := range filepath.SplitList(c.FilePrefix) {
		if strings.TrimSpace(d) != "" {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) == 0 {
		if wd, err := os.Getwd(); err == nil {
			dirs = append(dirs, wd)
		} else {
			dirs = append(dirs, ".")
		}
	}
	return dirs
}

// ResolveFilePath maps a data file name to a path. Absolute names are
// returned as is. Otherwise the first prefix directory holding the file
// wins; when none does, the name is placed in the first directory.
func (c *Config) ResolveFilePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	dirs := c.searchPath()
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dirs[0], name)
}

// ResolveLicense returns the license file to register with the engine: the
// configured path when it exists, else vision.vlc in the working directory
func (c *Config) ResolveLicense() (string, error) {
	if c.LicenseFilePath != "" {
		if _, err := os.Stat(c.LicenseFilePath); err == nil {
			return c.LicenseFilePath, nil
		}
	}
	wd, err := os.Getwd()
	if err == nil {
		local := filepath.Join(wd, DefaultLicenseFile)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}
	return "", errors.Wrapf(ErrLicenseNotFound, "configured %q, local %q", c.LicenseFilePath, DefaultLicenseFile)
}
