package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/panopticon/internal/config"
)

var hashCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate a bcrypt hash for DASHBOARD_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE:  runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)
}

func runHash(_ *cobra.Command, args []string) error {
	hash, err := config.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
