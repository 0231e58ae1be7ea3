package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/tracker/internal/client"
	"github.com/alfredjeanlab/tracker/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	user       string
	outputFlag string

	trackerClient client.TrackerClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("TRACKER_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("TRACKER_SERVER"); s != "" {
		return s
	}
	if a := activeRemote().GRPCAddr; a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultUser() string {
	if u := os.Getenv("TRACKER_USER"); u != "" {
		return u
	}
	return activeRemote().User
}

func newClient() (client.TrackerClient, error) {
	opts := client.Options{User: user, Token: activeRemote().Token}
	if t := os.Getenv("TRACKER_AUTH_TOKEN"); t != "" {
		opts.Token = t
	}
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, opts), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

var rootCmd = &cobra.Command{
	Use:           "tk <command>",
	Short:         "CLI client for the issue tracker",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseOutputFormat(outputFlag); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		trackerClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if trackerClient != nil {
			trackerClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", defaultUser(), "login to act as (empty = anonymous)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "output format (table, json or yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "issues", Title: "Issues:"},
		&cobra.Group{ID: "workflow", Title: "Workflow:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Issues
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(authorsCmd)
	rootCmd.AddCommand(securityReportCmd)

	// Workflow
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(transitionsCmd)
	rootCmd.AddCommand(transitionCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	ui.EnableColor(ui.ShouldUseColor())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
