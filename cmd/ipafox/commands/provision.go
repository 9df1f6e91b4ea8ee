package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/freeipa-workshop/ipafox/internal/config"
	"github.com/freeipa-workshop/ipafox/internal/container"
	"github.com/freeipa-workshop/ipafox/internal/provision"
	"github.com/freeipa-workshop/ipafox/internal/validation"
	"github.com/freeipa-workshop/ipafox/pkg/types"
)

// provisionCmd represents the provision command
var provisionCmd = &cobra.Command{
	Use:   "provision [clean]",
	Short: "Set up or tear down the workshop Firefox profile",
	Long: `Set up the workshop Firefox profile: register it in profiles.ini and
build an NSS trust store seeded with the workshop CA certificate, copied
out of the running server container with certutil.

Both steps are idempotent. Rerunning provision never duplicates the
registry entry and never reimports the certificate.

With the "clean" argument the profile entry is removed from profiles.ini
(leaving every other profile byte for byte untouched) and the trust
store directory is deleted.

Examples:
  # Set up the profile and trust store
  ipafox provision

  # Tear everything down again
  ipafox provision clean`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"clean"},
	RunE:      runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := validateProvisionConfig(cfg); err != nil {
		return err
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	trust, err := openTrustStore(cfg)
	if err != nil {
		return err
	}

	logger, err := openAuditLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	opts := provision.Options{
		Registry: reg,
		Trust:    trust,
		Fs:       afero.NewOsFs(),
		Audit:    logger,
		Profile: types.Profile{
			Name:       cfg.Profile.Name,
			IsRelative: true,
			Path:       cfg.Profile.Path,
		},
		ContainerCertPath: cfg.Container.CertPath,
	}

	if len(args) == 1 && args[0] == "clean" {
		return runProvisionClean(cmd, provision.New(opts), cfg)
	}

	// The CA certificate comes out of the workshop container, so the
	// container must be up before anything is touched.
	client, err := container.NewClient(container.Options{
		Runtime: cfg.Container.Runtime,
		Name:    cfg.Container.Name,
	})
	if err != nil {
		return err
	}
	verboseLog("Using container runtime %s", client.Runtime())

	running, err := client.Running(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to inspect container '%s': %w", cfg.Container.Name, err)
	}
	if !running {
		return fmt.Errorf("container '%s' is not running (start the workshop first)", cfg.Container.Name)
	}

	opts.Source = client
	provisioner := provision.New(opts)

	fmt.Printf("Provisioning Firefox profile '%s'...\n\n", cfg.Profile.Name)

	result, err := provisioner.Setup(cmd.Context())
	if err != nil {
		return err
	}

	if result.TrustStoreCreated {
		fmt.Printf("✓ Created trust store %s\n", result.TrustStorePath)
		fmt.Printf("✓ Imported CA certificate '%s' (%s)\n", cfg.Trust.Nickname, result.Cert.Subject)
		verboseLog("CA fingerprint %s", result.Cert.Fingerprint)
	} else {
		fmt.Printf("✓ Trust store already present at %s\n", result.TrustStorePath)
	}

	if result.RegistryAppended {
		fmt.Printf("✓ Registered [Profile%d] in %s\n", result.Suffix, result.RegistryPath)
	} else {
		fmt.Printf("✓ Profile already registered as [Profile%d] in %s\n", result.Suffix, result.RegistryPath)
	}

	for _, warning := range result.Warnings {
		fmt.Printf("⚠️  %s\n", warning)
	}

	fmt.Printf("\nProfile '%s' is ready! Launch it with:\n", cfg.Profile.Name)
	fmt.Println("  ipafox launch")

	return nil
}

func runProvisionClean(cmd *cobra.Command, provisioner *provision.Provisioner, cfg *config.Config) error {
	fmt.Printf("Cleaning up Firefox profile '%s'...\n\n", cfg.Profile.Name)

	result, err := provisioner.Clean(cmd.Context())
	if err != nil {
		return err
	}

	registryPath, err := cfg.RegistryPath()
	if err != nil {
		return err
	}
	profileDir, err := cfg.ProfileDir()
	if err != nil {
		return err
	}

	if result.RegistryRemoved {
		fmt.Printf("✓ Removed profile entry from %s\n", registryPath)
	} else {
		fmt.Printf("  Profile entry already absent from %s\n", registryPath)
	}

	if result.TrustStoreRemoved {
		fmt.Printf("✓ Removed trust store %s\n", profileDir)
	} else {
		fmt.Printf("  Trust store already absent at %s\n", profileDir)
	}

	fmt.Printf("\n✓ Profile '%s' cleaned up successfully\n", cfg.Profile.Name)
	return nil
}

// validateProvisionConfig screens every value that ends up in an external
// command line or in profiles.ini.
func validateProvisionConfig(cfg *config.Config) error {
	validator := validation.NewValidator()

	if err := validator.ValidateProfileName(cfg.Profile.Name); err != nil {
		return fmt.Errorf("invalid profile name: %w", err)
	}
	if err := validator.ValidateProfilePath(cfg.Profile.Path); err != nil {
		return fmt.Errorf("invalid profile path: %w", err)
	}
	if err := validator.ValidateContainerName(cfg.Container.Name); err != nil {
		return fmt.Errorf("invalid container name: %w", err)
	}
	if err := validator.ValidateRuntime(cfg.Container.Runtime); err != nil {
		return err
	}
	if err := validator.ValidateNickname(cfg.Trust.Nickname); err != nil {
		return fmt.Errorf("invalid certificate nickname: %w", err)
	}
	if err := validator.ValidateTrustFlags(cfg.Trust.TrustFlags); err != nil {
		return fmt.Errorf("invalid trust flags: %w", err)
	}
	if err := validator.ValidateFilePath(cfg.Container.CertPath); err != nil {
		return fmt.Errorf("invalid container cert path: %w", err)
	}

	return nil
}
