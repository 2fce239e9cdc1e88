package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tagclaw/tagclaw/internal/config"
	httpserver "github.com/tagclaw/tagclaw/internal/interfaces/http"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := config.Load()
		if cfg == nil {
			cfg = config.Default()
		}

		client := &http.Client{Timeout: 3 * time.Second}
		url := fmt.Sprintf("http://127.0.0.1:%d/api/status", cfg.HTTP.Port)
		resp, err := client.Get(url)
		if err != nil {
			fmt.Println(styleError.Render("✗ tagclaw is not running") + styleMuted.Render(fmt.Sprintf(" (no status server on port %d)", cfg.HTTP.Port)))
			return nil
		}
		defer resp.Body.Close()

		var result httpserver.StatusResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode status response: %w", err)
		}

		if result.Connected {
			fmt.Println(styleSuccess.Render("✓ tagclaw is running and connected"))
		} else {
			fmt.Println(styleWarn.Render("⚠ tagclaw is running but not connected to WhatsApp"))
		}
		fmt.Println()
		fmt.Printf("  Uptime:           %s\n", result.Uptime)
		fmt.Printf("  Active sessions:  %d\n", result.ActiveSessions)
		fmt.Printf("  Owner set:        %v\n", result.OwnerSet)
		fmt.Printf("  Admins:           %d\n", result.AdminCount)
		return nil
	},
}

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)
