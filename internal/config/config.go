package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ErrConfigNotFound is returned when the config file is not found by Load.
var ErrConfigNotFound = errors.New("configuration file not found")

// Config represents the application configuration
type Config struct {
	Registry  RegistryConfig  `mapstructure:"registry"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Trust     TrustConfig     `mapstructure:"trust"`
	Container ContainerConfig `mapstructure:"container"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RegistryConfig represents Firefox profile registry settings
type RegistryConfig struct {
	// Path to profiles.ini. Empty means ~/.mozilla/firefox/profiles.ini.
	Path string `mapstructure:"path"`
}

// ProfileConfig represents the managed workshop profile
type ProfileConfig struct {
	Name string `mapstructure:"name"`
	// Path is the relative directory name written to the registry entry.
	Path string `mapstructure:"path"`
}

// BrowserConfig represents the sandboxed browser to launch
type BrowserConfig struct {
	FlatpakApp string `mapstructure:"flatpak_app"`
}

// TrustConfig represents NSS certificate import settings
type TrustConfig struct {
	Nickname   string `mapstructure:"nickname"`
	TrustFlags string `mapstructure:"trust_flags"`
}

// ContainerConfig represents the workshop container the CA cert is copied from
type ContainerConfig struct {
	Runtime  string `mapstructure:"runtime"` // podman, docker, or auto
	Name     string `mapstructure:"name"`
	CertPath string `mapstructure:"cert_path"`
}

// LoggingConfig represents audit logging configuration
type LoggingConfig struct {
	File string `mapstructure:"file"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Path: "",
		},
		Profile: ProfileConfig{
			Name: "ipa-workshop",
			Path: "ipa-workshop",
		},
		Browser: BrowserConfig{
			FlatpakApp: "org.mozilla.firefox",
		},
		Trust: TrustConfig{
			Nickname:   "IPA CA",
			TrustFlags: "CT,,",
		},
		Container: ContainerConfig{
			Runtime:  "podman",
			Name:     "server",
			CertPath: "/etc/ipa/ca.crt",
		},
		Logging: LoggingConfig{
			File: "",
		},
	}
}

// Load loads configuration from file
func Load(configFile string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config") // Default name if configFile is a directory
	v.SetConfigType("yaml")

	configDir := getConfigDir()
	resolvedConfigFile := configFile

	if configFile == "" || configFile == filepath.Join(configDir, "config.yaml") {
		// Loading the default config file: let viper search the usual
		// locations, but resolve the exact path ourselves so the existence
		// check below is reliable.
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
		if configFile == "" {
			resolvedConfigFile = filepath.Join(configDir, "config.yaml")
		}
	} else {
		// A specific configFile (potentially outside default paths) was given.
		v.SetConfigFile(configFile)
		resolvedConfigFile = configFile
	}

	// Check existence explicitly; viper's own not-found error is unreliable
	// once SetConfigFile is involved.
	if _, err := os.Stat(resolvedConfigFile); os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}

	// Environment variable overrides
	v.SetEnvPrefix("IPAFOX")
	v.AutomaticEnv()

	_ = v.BindEnv("profile.name", "IPAFOX_PROFILE")
	_ = v.BindEnv("registry.path", "IPAFOX_REGISTRY_PATH")
	_ = v.BindEnv("container.name", "IPAFOX_CONTAINER")
	_ = v.BindEnv("container.runtime", "IPAFOX_RUNTIME")
	_ = v.BindEnv("logging.file", "IPAFOX_LOG_FILE")

	if err := v.ReadInConfig(); err != nil {
		// ReadInConfig can still fail after the os.Stat check (permissions,
		// malformed YAML). Map viper's not-found back to our sentinel.
		var vfnfError viper.ConfigFileNotFoundError
		if errors.As(err, &vfnfError) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file content: %w", err)
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set default log file if not specified
	if config.Logging.File == "" {
		config.Logging.File = filepath.Join(configDir, "logs", "audit.log")
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(configFile string) error {
	if configFile == "" {
		configFile = filepath.Join(getConfigDir(), "config.yaml")
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	v.Set("registry.path", c.Registry.Path)
	v.Set("profile.name", c.Profile.Name)
	v.Set("profile.path", c.Profile.Path)
	v.Set("browser.flatpak_app", c.Browser.FlatpakApp)
	v.Set("trust.nickname", c.Trust.Nickname)
	v.Set("trust.trust_flags", c.Trust.TrustFlags)
	v.Set("container.runtime", c.Container.Runtime)
	v.Set("container.name", c.Container.Name)
	v.Set("container.cert_path", c.Container.CertPath)
	v.Set("logging.file", c.Logging.File)

	return v.WriteConfig()
}

// SaveDefault saves configuration to the default location
func (c *Config) SaveDefault() error {
	return c.Save("")
}

// RegistryPath resolves the profile registry location, defaulting to
// profiles.ini under the user's Firefox directory.
func (c *Config) RegistryPath() (string, error) {
	if c.Registry.Path != "" {
		return c.Registry.Path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".mozilla", "firefox", "profiles.ini"), nil
}

// ProfileDir resolves the absolute trust store directory for the managed
// profile: the registry entry's Path relative to the registry's directory.
func (c *Config) ProfileDir() (string, error) {
	registryPath, err := c.RegistryPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(registryPath), c.Profile.Path), nil
}

// getConfigDir returns the configuration directory
func getConfigDir() string {
	if configDir := os.Getenv("IPAFOX_CONFIG_DIR"); configDir != "" {
		return configDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fall back to current directory with absolute path
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".config", "ipafox")
	}

	return filepath.Join(homeDir, ".config", "ipafox")
}

// GetConfigDir returns the configuration directory (exported)
func GetConfigDir() string {
	return getConfigDir()
}

// EnsureConfigDir ensures the configuration directory exists
func EnsureConfigDir() error {
	configDir := getConfigDir()
	return os.MkdirAll(configDir, 0700)
}

// LoadOrCreate loads existing config or creates a new one
func LoadOrCreate(configFile string) (*Config, error) {
	cfg, err := Load(configFile)
	if err == nil {
		return cfg, nil
	}

	if !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}

	// Config doesn't exist, create and persist the defaults.
	cfg = DefaultConfig()

	finalConfigFile := configFile
	if finalConfigFile == "" || finalConfigFile == "config.yaml" {
		finalConfigFile = filepath.Join(getConfigDir(), "config.yaml")
	}

	if errSave := cfg.Save(finalConfigFile); errSave != nil {
		return nil, fmt.Errorf("failed to save default config to %s: %w", finalConfigFile, errSave)
	}
	return cfg, nil
}
