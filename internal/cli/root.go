package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// SetBuildInfo sets version info injected at build time.
func SetBuildInfo(v, date, commit string) {
	version = v
	buildDate = date
	gitCommit = commit
}

var rootCmd = &cobra.Command{
	Use:   "tagclaw",
	Short: "TagClaw — WhatsApp group mention bot",
	Long: `🏷️  TagClaw — WhatsApp group mention bot

Tag every member of a group at once, visibly or as a hidden mention,
driven entirely by chat commands. Pair once by QR code and run it
anywhere a single static binary runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tagclaw %s\n", version)
		fmt.Printf("  build:  %s\n", buildDate)
		fmt.Printf("  commit: %s\n", gitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmdGroup)
	rootCmd.AddCommand(logsCmd)
}

// Execute runs the root cobra command.
func Execute() error {
	return rootCmd.Execute()
}
