package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one price check cycle over all subscriptions",
	Long: `Search every subscribed product once, compare the prices with each
subscription's last known prices and queue the price-drop alerts.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := engine.RunCycle(cmd.Context())
	if err != nil {
		return fmt.Errorf("price check failed: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
