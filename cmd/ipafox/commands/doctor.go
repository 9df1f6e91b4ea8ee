package commands

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/freeipa-workshop/ipafox/internal/container"
	"github.com/freeipa-workshop/ipafox/pkg/types"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the workshop browser environment",
	Long: `Run all environment checks and report each result.

This command verifies that:
- The profile registry is readable
- The workshop profile is registered and its trust store exists
- certutil and flatpak are installed
- The container runtime works and the server container is running

Every check runs even if an earlier one fails; the command exits
non-zero when any check failed.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
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

	fmt.Println("Checking the workshop browser environment")
	fmt.Println()

	var checks []types.Check
	step := 0
	check := func(name string, run func() (string, error)) {
		step++
		fmt.Printf("%d. %s... ", step, name)
		detail, err := run()
		if err != nil {
			fmt.Printf("✗ (%v)\n", err)
			checks = append(checks, types.Check{Name: name, Status: "failed", Error: err.Error()})
			return
		}
		if detail != "" {
			fmt.Printf("✓ (%s)\n", detail)
		} else {
			fmt.Println("✓")
		}
		checks = append(checks, types.Check{Name: name, Status: "ok"})
	}

	check("Profile registry", func() (string, error) {
		entries, err := reg.Entries()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d profiles in %s", len(entries), reg.Path()), nil
	})

	check("Workshop profile", func() (string, error) {
		entry, err := reg.Lookup(cfg.Profile.Name)
		if err != nil {
			return "", fmt.Errorf("not registered (run \"ipafox provision\" first)")
		}
		return fmt.Sprintf("registered as [Profile%d]", entry.Suffix), nil
	})

	check("Trust store", func() (string, error) {
		exists, err := trust.Exists()
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("absent at %s (run \"ipafox provision\" first)", trust.Dir())
		}
		return trust.Dir(), nil
	})

	check("certutil", func() (string, error) {
		return exec.LookPath("certutil")
	})

	check("flatpak", func() (string, error) {
		return exec.LookPath("flatpak")
	})

	var client *container.Client
	check("Container runtime", func() (string, error) {
		var err error
		client, err = container.NewClient(container.Options{
			Runtime: cfg.Container.Runtime,
			Name:    cfg.Container.Name,
		})
		if err != nil {
			return "", err
		}
		return client.Runtime(), nil
	})

	check(fmt.Sprintf("Container '%s'", cfg.Container.Name), func() (string, error) {
		if client == nil {
			return "", fmt.Errorf("no container runtime available")
		}
		running, err := client.Running(cmd.Context())
		if err != nil {
			return "", err
		}
		if !running {
			return "", fmt.Errorf("not running (start the workshop first)")
		}
		return "running", nil
	})

	failed := 0
	for _, c := range checks {
		if c.Status == "failed" {
			failed++
		}
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}

	fmt.Println("✓ All checks passed!")
	return nil
}
