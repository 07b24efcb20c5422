package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/torvik-dev/parley/internal/config"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Tool registry operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			specs := a.reg.Specs()
			if len(specs) == 0 {
				fmt.Println("no tools registered")
				return nil
			}
			for _, s := range specs {
				marker := " "
				if s.Dangerous {
					marker = "!"
				}
				fmt.Printf("%s %-20s %-12s %s\n", marker, s.Name, s.Category, s.Description)
			}
			return nil
		},
	})
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(a *app) error {
				st, err := a.store.Stats()
				if err != nil {
					return err
				}
				fmt.Printf("database:    %s\n", st.Path)
				fmt.Printf("sessions:    %d\n", st.Sessions)
				fmt.Printf("messages:    %d\n", st.Messages)
				fmt.Printf("invocations: %d\n", st.Invocations)
				return nil
			})(cmd, args)
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Write a compacted copy of the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(a *app) error {
				if err := a.store.Backup(args[0]); err != nil {
					return err
				}
				fmt.Printf("backed up to %s\n", args[0])
				return nil
			})(cmd, args)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file to ~/.parley/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureDirs(); err != nil {
				return err
			}
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
