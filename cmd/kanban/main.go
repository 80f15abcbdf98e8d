package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/auth"
	"github.com/h0rv/kanban/internal/config"
	"github.com/h0rv/kanban/internal/remote"
	"github.com/h0rv/kanban/internal/tui"
)

var (
	// CLI flags
	userFlag   string
	serverFlag string
	boardFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kanban",
		Short: "Collaborative kanban boards in the terminal",
		Long: `kanban is a collaborative kanban board: a server that stores boards and
fans out changes, and a terminal client with keyboard and mouse drag-and-drop.

Run 'kanban serve' to start a server, then 'kanban' to open a board.

Identity:
  1. --user flag
  2. Environment variable: Set KANBAN_USER
  3. git config user.email

Configuration is read from the YAML file named by KANBAN_CONFIG and
KANBAN_* environment variables.`,
		SilenceUsage: true,
		RunE:         runBoard,
	}

	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "User to act as. Defaults to KANBAN_USER or git config user.email.")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Server URL. Defaults to the configured server_url.")
	rootCmd.Flags().StringVar(&boardFlag, "board", "", "Board ID to open. Skips the board picker.")

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newBoardsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newClient builds a server client from flags and configuration.
func newClient(cfg config.Config, log *slog.Logger) (*remote.Client, error) {
	user := userFlag
	if user == "" {
		user = cfg.Client.User
	}
	user, err := auth.GetUser(user)
	if err != nil {
		return nil, err
	}

	serverURL := serverFlag
	if serverURL == "" {
		serverURL = cfg.Client.ServerURL
	}
	return remote.New(serverURL, user, remote.WithLogger(log)), nil
}

func runBoard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	f, err := tea.LogToFile(cfg.Log.File, "kanban")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))

	client, err := newClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app := tui.NewAppModel(ctx, client, tui.AppOptions{
		BoardID:       boardFlag,
		DragThreshold: cfg.Client.DragThreshold,
		Logger:        log,
	})
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}
