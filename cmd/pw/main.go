package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywatch/internal/client"
	"github.com/alfredjeanlab/paywatch/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool

	// queryClient serves the read commands over the chosen transport;
	// httpClient serves ingest, authorization, sources and the stream,
	// which only the HTTP API carries.
	queryClient client.Client
	httpClient  *client.HTTPClient
)

func envOr(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:   "pw <command>",
	Short: "Payment notification watcher",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		httpClient = client.NewHTTPClient(httpURL, authToken)
		switch transport {
		case "http":
			queryClient = httpClient
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, authToken)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			queryClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if queryClient != nil {
			queryClient.Close()
		}
	},
	SilenceUsage: true,
}

// noClient is the PersistentPreRunE of commands that work locally.
func noClient(cmd *cobra.Command, args []string) error {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOr("PAYWATCH_HTTP_URL", "http://localhost:8080"), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("PAYWATCH_SERVER", "localhost:9090"), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport for queries (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("PAYWATCH_AUTH_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "query", Title: "Query:"},
		&cobra.Group{ID: "ingest", Title: "Ingest:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Query
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(authorizedCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(watchCmd)

	// Ingest
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(removeCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
