package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify CRM and database connectivity",
	Long:  `Refresh an access token against the CRM auth server and ping the cache database, then exit. Useful for validating a deployment's credentials.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.client.TestConnection(cmd.Context()); err != nil {
		return fmt.Errorf("CRM connection check failed: %w", err)
	}

	fmt.Println("CRM connection: ok")
	fmt.Println("Cache database: ok")
	return nil
}
