package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torvik-dev/parley/internal/export"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.AddCommand(
		sessionsListCmd(),
		sessionsDeleteCmd(),
		sessionsExportCmd(),
		sessionsSearchCmd(),
	)
	return cmd
}

func withStore(fn func(a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		if a.store == nil {
			return fmt.Errorf("persistence is disabled (--no-memory or database.enabled: false)")
		}
		return fn(a)
	}
}

func sessionsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(a *app) error {
				sessions, err := a.store.ListSessions(limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Println("no sessions")
					return nil
				}
				for _, s := range sessions {
					fmt.Printf("%s  %3d msgs  updated %s\n",
						s.ID, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list (0 = all)")
	return cmd
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(a *app) error {
				if err := a.store.DeleteSession(args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})(cmd, args)
		},
	}
}

func sessionsExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Print a session as yaml, json, or markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(a *app) error {
				sess, err := a.store.LoadSession(args[0])
				if err != nil {
					return err
				}
				out, err := export.Render(sess, format)
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatMarkdown, "Output format: yaml|json|markdown")
	return cmd
}

func sessionsSearchCmd() *cobra.Command {
	var (
		sessionID string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search message contents across sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(a *app) error {
				hits, err := a.store.SearchMessages(args[0], sessionID, limit)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Println("no matches")
					return nil
				}
				for _, h := range hits {
					fmt.Printf("%s  [%s] %s\n", h.SessionID, h.Role, h.Content)
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Restrict to one session")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum matches (0 = all)")
	return cmd
}
