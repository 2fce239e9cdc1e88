package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagclaw/tagclaw/internal/config"
	syslogger "github.com/tagclaw/tagclaw/internal/system/logger"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect log files",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all log files",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveLogDir()
		files, err := syslogger.ListLogFiles(dir)
		if err != nil {
			return fmt.Errorf("list log files: %w", err)
		}
		if len(files) == 0 {
			fmt.Printf("No log files found in %s\n", dir)
			return nil
		}

		fmt.Printf("Log files (%d):\n\n", len(files))
		for _, f := range files {
			sizeMB := float64(f.Size) / 1024 / 1024
			fmt.Printf("  %-32s  %8.2f MB  %s\n", f.Name, sizeMB, f.ModTime.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("\nLog directory: %s\n", dir)
		return nil
	},
}

var logsTailLines int

var logsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the end of the latest log file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveLogDir()
		files, err := syslogger.ListLogFiles(dir)
		if err != nil {
			return fmt.Errorf("list log files: %w", err)
		}
		if len(files) == 0 {
			fmt.Printf("No log files found in %s\n", dir)
			return nil
		}

		lines, err := syslogger.TailFile(files[0].Path, logsTailLines)
		if err != nil {
			return fmt.Errorf("tail %s: %w", files[0].Name, err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

var logsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old log files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := config.Load()
		if cfg == nil {
			cfg = config.Default()
		}

		maxAge := cfg.Log.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 30
		}

		mgr, err := syslogger.New(syslogger.Config{
			Dir:        cfg.Log.Dir,
			Level:      syslogger.ParseLevel(cfg.Log.Level),
			MaxAgeDays: maxAge,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer mgr.Close()

		removed, err := mgr.Cleanup()
		if err != nil {
			return fmt.Errorf("cleanup logs: %w", err)
		}
		if removed == 0 {
			fmt.Println("No expired log files to clean.")
		} else {
			fmt.Printf("Removed %d expired log files (older than %d days)\n", removed, maxAge)
		}
		return nil
	},
}

func init() {
	logsTailCmd.Flags().IntVarP(&logsTailLines, "lines", "n", 50, "Number of lines to print")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsTailCmd)
	logsCmd.AddCommand(logsCleanCmd)
}

func resolveLogDir() string {
	cfg, _ := config.Load()
	if cfg != nil && strings.TrimSpace(cfg.Log.Dir) != "" {
		return cfg.Log.Dir
	}
	return config.Default().Log.Dir
}
