package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/freeipa-workshop/ipafox/internal/registry"
)

// profilesCmd represents the profiles command
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect Firefox profiles",
	Long: `List and inspect the profiles registered in Firefox's profiles.ini.

The listing covers every registered profile, not just the managed
workshop profile, so it can be used to double check that provisioning
left the rest of the registry alone.`,
}

// profilesListCmd represents the profiles list command
var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered profiles",
	Long:  `List every profile registered in profiles.ini with its section and path.`,
	RunE:  runProfilesList,
}

// profilesShowCmd represents the profiles show command
var profilesShowCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Show profile details",
	Long:  `Show detailed information about a specific registered profile.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesShow,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	entries, err := reg.Entries()
	if err != nil {
		return fmt.Errorf("failed to read profile registry: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No profiles registered.")
		fmt.Println("\nTo register the workshop profile, run:")
		fmt.Println("  ipafox provision")
		return nil
	}

	// Display profiles in a table
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SECTION\tNAME\tPATH\tRELATIVE\tMANAGED")
	fmt.Fprintln(w, "-------\t----\t----\t--------\t-------")

	for _, entry := range entries {
		relative := ""
		if entry.IsRelative {
			relative = "✓"
		}
		managed := ""
		if entry.Name == cfg.Profile.Name {
			managed = "✓"
		}

		fmt.Fprintf(w, "Profile%d\t%s\t%s\t%s\t%s\n", entry.Suffix, entry.Name, entry.Path, relative, managed)
	}
	w.Flush()

	return nil
}

func runProfilesShow(cmd *cobra.Command, args []string) error {
	profileName := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	entry, err := reg.Lookup(profileName)
	if err != nil {
		if errors.Is(err, registry.ErrProfileNotFound) {
			return fmt.Errorf("profile '%s' not found in %s", profileName, reg.Path())
		}
		return fmt.Errorf("failed to read profile registry: %w", err)
	}

	profileDir := entry.Path
	if entry.IsRelative {
		profileDir = filepath.Join(filepath.Dir(reg.Path()), entry.Path)
	}

	// Display profile information
	fmt.Printf("Profile: %s\n", entry.Name)
	fmt.Printf("Section: [Profile%d]\n", entry.Suffix)
	fmt.Printf("Path: %s\n", entry.Path)
	fmt.Printf("Relative: %v\n", entry.IsRelative)
	fmt.Printf("Directory: %s\n", profileDir)

	if _, err := os.Stat(profileDir); err == nil {
		fmt.Printf("Exists: true\n")
	} else {
		fmt.Printf("Exists: false\n")
	}

	fmt.Printf("Managed: %v\n", entry.Name == cfg.Profile.Name)

	if entry.Name == cfg.Profile.Name {
		trust, err := openTrustStore(cfg)
		if err != nil {
			return err
		}
		present, err := trust.Exists()
		if err != nil {
			return err
		}
		if present {
			fmt.Printf("\nTrust store: present (%s)\n", trust.Dir())
		} else {
			fmt.Printf("\nTrust store: absent (run \"ipafox provision\" to create it)\n")
		}
	}

	return nil
}
