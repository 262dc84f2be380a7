package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/panopticon/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard REST API server",
	Long:  `Start an HTTP server that exposes the classified lead list, per-lead stage history, and daily status snapshots behind password login.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	// Warm the upstream connection before accepting traffic so a bad
	// credential fails at startup, not on the first dashboard load.
	if err := app.client.TestConnection(context.Background()); err != nil {
		return fmt.Errorf("CRM connection check failed: %w", err)
	}

	srv, err := server.New(server.Config{Port: servePort}, app.orchestrator, app.store)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
