package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeipa-workshop/ipafox/internal/browser"
	"github.com/freeipa-workshop/ipafox/internal/validation"
)

// launchCmd represents the launch command
var launchCmd = &cobra.Command{
	Use:   "launch [-- firefox-args...]",
	Short: "Launch the sandboxed Firefox with the workshop profile",
	Long: `Launch the flatpak Firefox bound to the workshop profile.

The profile must already be registered in profiles.ini; run
"ipafox provision" first. The browser is started detached in its own
session, so ipafox exits immediately and the browser keeps running.

Arguments after -- are forwarded to Firefox verbatim.

Examples:
  # Launch the workshop browser
  ipafox launch

  # Open the IPA web UI in a private window
  ipafox launch -- --private-window https://server.ipa.demo`,
	Args: cobra.ArbitraryArgs,
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	validator := validation.NewValidator()
	if err := validator.ValidateProfileName(cfg.Profile.Name); err != nil {
		return fmt.Errorf("invalid profile name: %w", err)
	}
	if err := validator.ValidateFlatpakApp(cfg.Browser.FlatpakApp); err != nil {
		return fmt.Errorf("invalid flatpak application: %w", err)
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	exists, err := reg.Exists(cfg.Profile.Name)
	if err != nil {
		return fmt.Errorf("failed to read profile registry: %w", err)
	}
	if !exists {
		return fmt.Errorf("profile \"%s\" not found in %s (run \"ipafox provision\" first)", cfg.Profile.Name, reg.Path())
	}

	logger, err := openAuditLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	launcher := browser.NewLauncher(browser.Options{
		AppID: cfg.Browser.FlatpakApp,
	})

	verboseLog("Launching %s with profile %s", cfg.Browser.FlatpakApp, cfg.Profile.Name)

	pid, err := launcher.Launch(cfg.Profile.Name, args)
	if err != nil {
		logger.LogError("browser", err, nil)
		return err
	}

	cmdline := browser.FlatpakCommand{
		AppID:     cfg.Browser.FlatpakApp,
		Profile:   cfg.Profile.Name,
		ExtraArgs: args,
	}
	logger.LogLaunch(cfg.Profile.Name, pid, cmdline.Build())

	fmt.Printf("✓ Launched %s (PID %d)\n", cfg.Browser.FlatpakApp, pid)
	return nil
}
