// Command feedeaterctl is the operator CLI for a running feedeater
// process: it talks to the operational HTTP surface (internal/httpapi) to
// list modules, read/write settings, check and trigger jobs, and tail the
// event bus. It never touches Postgres, NATS, or Vault directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var apiBaseURL string

var rootCmd = &cobra.Command{
	Use:   "feedeaterctl",
	Short: "Operator CLI for the feedeater ingestion fleet",
	Long: `feedeaterctl talks to a running feedeater process's operational
HTTP surface to inspect modules, manage settings, check or trigger jobs,
and tail the event bus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiBaseURL = viper.GetString("api-base-url")
		if apiBaseURL == "" {
			return fmt.Errorf("--api-base-url (or FEEDEATERCTL_API_BASE_URL) is required")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("api-base-url", "http://localhost:8080", "feedeater HTTP API base URL")
	viper.BindPFlag("api-base-url", rootCmd.PersistentFlags().Lookup("api-base-url"))
	viper.SetEnvPrefix("FEEDEATERCTL")
	viper.AutomaticEnv()

	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(busCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
