package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/config"
	"github.com/h0rv/kanban/internal/domain"
)

func newBoardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List the boards you belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}

			boards, err := client.ListBoards(cmd.Context())
			if err != nil {
				return err
			}
			if len(boards) == 0 {
				fmt.Println("No boards. Create one with 'kanban boards create <title>'.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tROLE\tVERSION")
			for _, b := range boards {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", b.ID, b.Title, b.Role, b.Version)
			}
			return w.Flush()
		},
	}

	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a board with To Do, Doing and Done lists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			b, err := client.CreateBoard(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, title := range []string{"To Do", "Doing", "Done"} {
				if _, err := client.CreateList(ctx, b.ID, title); err != nil {
					return fmt.Errorf("create list %q: %w", title, err)
				}
			}
			fmt.Printf("Created %s (%s)\n", b.Title, b.ID)
			return nil
		},
	}

	var role string
	share := &cobra.Command{
		Use:   "share <board-id> <user>",
		Short: "Add a member to a board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			r := domain.Role(strings.ToUpper(role))
			if _, err := client.AddMember(cmd.Context(), args[0], args[1], r); err != nil {
				return err
			}
			fmt.Printf("Added %s to %s as %s\n", args[1], args[0], r)
			return nil
		},
	}
	share.Flags().StringVar(&role, "role", string(domain.RoleMember), "Member role: MEMBER or ADMIN")

	cmd.AddCommand(create, share)
	return cmd
}
