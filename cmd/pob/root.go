package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pobuild/pob/internal/version"
	"github.com/pobuild/pob/pkg/logging"
)

var (
	verbosity    int
	force        bool
	projectsRoot string

	rootCmd = &cobra.Command{
		Use:   "pob",
		Short: "Patch/override bundle manager for multi-repo board builds",
		Long: `pob manages per-project patch/override bundles: sets of unified diffs
and verbatim file overrides kept under each board's po directory. Bundles
are applied to and reverted from a working tree that may span several git
repositories, with the applied state tracked in flag files at the tree root.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Skip confirmation prompts")
	rootCmd.PersistentFlags().StringVar(&projectsRoot, "projects-root", defaultProjectsRoot(), "Directory holding the board configuration trees")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(buildCmd)
}

// defaultProjectsRoot honors the environment before falling back to the
// conventional tree name.
func defaultProjectsRoot() string {
	if root := os.Getenv("POB_PROJECTS_ROOT"); root != "" {
		return root
	}
	return "vprojects"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pob version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
