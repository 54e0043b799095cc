package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/internal/logger"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

var verbose bool

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "brain",
	Short: "Brain - query and history for a personal knowledge base",
	Long: `Brain answers questions about a knowledge base of people, projects,
issues, meetings, decisions and documents stored as markdown records.

Queries combine keyword matches with the relationships between records.
Every recorded change is kept in an append-only event log, so any record
can be viewed as it was at an earlier time.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "brain %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
