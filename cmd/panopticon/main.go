// Package main provides the entry point for the lead follow-up service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "panopticon",
	Short: "CRM lead follow-up health service",
	Long:  "Panopticon syncs appointment leads from the CRM, caches them in Postgres, and classifies each lead's follow-up health for the field operations dashboard.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
