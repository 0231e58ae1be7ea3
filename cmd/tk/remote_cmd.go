package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tracker/internal/client"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named tracker servers",
	GroupID: "system",
	// Remote subcommands only touch the local remotes file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		r := Remote{URL: args[1]}
		r.Token, _ = cmd.Flags().GetString("token")
		r.GRPCAddr, _ = cmd.Flags().GetString("grpc")
		r.User, _ = cmd.Flags().GetString("login")

		if check, _ := cmd.Flags().GetBool("check"); check {
			if err := r.validate(); err != nil {
				return err
			}
			c := client.NewHTTPClient(r.URL, client.Options{User: r.User, Token: r.Token})
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			status, err := c.Health(ctx)
			if err != nil {
				return fmt.Errorf("remote %q is not reachable: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", r.URL, status)
		}

		if err := updateRemotes(func(cfg *RemotesConfig) error { return cfg.Add(name, r) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", name, r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := updateRemotes(func(cfg *RemotesConfig) error { return cfg.Remove(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", args[0])
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := updateRemotes(func(cfg *RemotesConfig) error { return cfg.Use(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", args[0])
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes; the active one is starred",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		names := cfg.Names()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no remotes configured")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tGRPC\tUSER\tTOKEN")
		for _, name := range names {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n", marker, name, r.URL, r.GRPCAddr, r.User, r.maskedToken(true))
		}
		return w.Flush()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show one remote (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		name, r, err := cfg.Lookup(name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if name == cfg.Active {
			name += " (active)"
		}
		fields := [][2]string{
			{"name", name},
			{"url", r.URL},
			{"grpc_addr", r.GRPCAddr},
			{"user", r.User},
			{"token", r.maskedToken(false)},
		}
		for _, f := range fields {
			if f[1] != "" {
				fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
			}
		}
		return w.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token the server requires")
	remoteAddCmd.Flags().String("grpc", "", "gRPC address (host:port) for --transport grpc")
	remoteAddCmd.Flags().String("login", "", "login to act as by default")
	remoteAddCmd.Flags().Bool("check", false, "verify the server answers its health check before saving")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
