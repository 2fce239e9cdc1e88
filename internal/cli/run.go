package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tagclaw/tagclaw/internal/config"
	"github.com/tagclaw/tagclaw/internal/dispatch"
	"github.com/tagclaw/tagclaw/internal/infrastructure/whatsapp"
	httpserver "github.com/tagclaw/tagclaw/internal/interfaces/http"
	"github.com/tagclaw/tagclaw/internal/session"
	"github.com/tagclaw/tagclaw/internal/settings"
	syslogger "github.com/tagclaw/tagclaw/internal/system/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	Long: `Connect to WhatsApp and serve chat commands.

On first run a QR code is printed; scan it from WhatsApp under
Linked devices > Link a device. Credentials persist across restarts.`,
	RunE: runBot,
}

var (
	runVerbose bool
	runPort    int
	runNoHTTP  bool
)

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug logging")
	runCmd.Flags().IntVarP(&runPort, "port", "p", 0, "Status server port (overrides config)")
	runCmd.Flags().BoolVar(&runNoHTTP, "no-http", false, "Disable the status server")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load warning, using defaults: %v\n", err)
		cfg = config.Default()
	}
	if cmd.Flags().Changed("port") {
		cfg.HTTP.Port = runPort
	}
	if runNoHTTP {
		cfg.HTTP.Enabled = false
	}

	level := syslogger.ParseLevel(cfg.Log.Level)
	if runVerbose {
		level = slog.LevelDebug
	}
	logMgr, err := syslogger.New(syslogger.Config{
		Dir:           cfg.Log.Dir,
		Level:         level,
		MaxAgeDays:    cfg.Log.MaxAgeDays,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		StderrEnabled: true,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logMgr.Close()
	if removed, err := logMgr.Cleanup(); err == nil && removed > 0 {
		fmt.Printf("Cleaned up %d expired log files\n", removed)
	}

	logger := logMgr.NewLogger()
	slog.SetDefault(logger)

	printBanner()

	store := settings.NewStore(cfg.Bot.SettingsPath, logger)
	if err := store.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := whatsapp.NewChannel(whatsapp.Config{
		CredentialDB: cfg.Bot.CredentialDB,
		DeviceName:   cfg.Bot.DeviceName,
	}, logger)
	if err := channel.Start(ctx); err != nil {
		return fmt.Errorf("start whatsapp channel: %w", err)
	}

	sessions := session.NewManager()
	dispatcher := dispatch.New(channel, store, sessions, cfg.Bot.CommandRateLimit, logger)
	go dispatcher.Run(ctx)

	if cfg.HTTP.Enabled {
		srv := httpserver.NewServer(cfg.HTTP, logger, sessions, store, channel.IsConnected)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status server error", "error", err)
			}
		}()
		logger.Info("status server enabled", "port", cfg.HTTP.Port)
	}

	logger.Info("tagclaw ready", "version", version, "device", cfg.Bot.DeviceName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig.String())
	cancel()

	if err := channel.Stop(); err != nil {
		logger.Warn("channel shutdown", "error", err)
	}
	return nil
}

func printBanner() {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Render("🏷️  TagClaw — WhatsApp group mention bot")
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	fmt.Println()
	fmt.Println("  " + title)
	fmt.Println("  " + muted.Render(fmt.Sprintf("version: %s", version)))
	fmt.Println("  " + muted.Render(fmt.Sprintf("runtime: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)))
	fmt.Println()
}
