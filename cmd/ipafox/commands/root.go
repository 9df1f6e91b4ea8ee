package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/freeipa-workshop/ipafox/internal/audit"
	"github.com/freeipa-workshop/ipafox/internal/config"
	"github.com/freeipa-workshop/ipafox/internal/registry"
	"github.com/freeipa-workshop/ipafox/internal/truststore"
)

var (
	version     = "dev"
	configFile  string
	profileFlag string
	verbose     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ipafox",
	Short: "Sandboxed Firefox for the FreeIPA workshop",
	Long: `ipafox manages a dedicated Firefox profile for the FreeIPA workshop.

It registers the profile in Firefox's profiles.ini, builds an NSS trust
store seeded with the workshop CA certificate pulled from the server
container, and launches the sandboxed flatpak Firefox bound to that
profile. Everything it creates can be torn down again without disturbing
the rest of the Firefox installation.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep cobra's own output (usage, errors) off stdout; diagnostics belong
	// on stderr so command output stays pipeable.
	rootCmd.SetOut(os.Stderr)
	rootCmd.SetErr(os.Stderr)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ~/.config/ipafox/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
}

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// verboseLog prints a message only if verbose mode is enabled
func verboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// loadConfig loads the configuration, creating the default file on first
// run, and applies the global --profile override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrCreate(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if profileFlag != "" {
		cfg.Profile.Name = profileFlag
		cfg.Profile.Path = profileFlag
	}
	return cfg, nil
}

// openRegistry builds the profile registry store for the configured
// profiles.ini location.
func openRegistry(cfg *config.Config) (*registry.File, error) {
	registryPath, err := cfg.RegistryPath()
	if err != nil {
		return nil, err
	}
	verboseLog("Using profile registry %s", registryPath)
	return registry.New(afero.NewOsFs(), registryPath), nil
}

// openTrustStore builds the trust store handle for the configured profile
// directory.
func openTrustStore(cfg *config.Config) (*truststore.Store, error) {
	profileDir, err := cfg.ProfileDir()
	if err != nil {
		return nil, err
	}
	verboseLog("Using trust store %s", profileDir)
	return truststore.New(truststore.Options{
		Dir:        profileDir,
		Nickname:   cfg.Trust.Nickname,
		TrustFlags: cfg.Trust.TrustFlags,
	}), nil
}

// openAuditLogger creates the audit logger at the configured location.
func openAuditLogger(cfg *config.Config) (*audit.Logger, error) {
	logger, err := audit.NewLogger(audit.Config{
		FilePath: cfg.Logging.File,
		MaxSize:  10 * 1024 * 1024,    // 10MB in bytes
		MaxAge:   30 * 24 * time.Hour, // 30 days
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}
	return logger, nil
}
