// Package cli provides the command-line interface for precedent.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tomasbielik/precedent/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	userID    string
	verbose   bool

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "precedent",
	Short: "Legal precedent research from Slovak court decisions",
	Long: `Precedent runs long-form legal research over an index of Slovak court
decisions. Describe a legal problem and the service searches the index,
reads candidate decisions and synthesizes a research report.

The CLI talks to a running precedent-api server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
		if userID != "" {
			apiClient.SetUser(userID)
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server URL (default PRECEDENT_SERVER_URL or http://localhost:8090)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id recorded on submitted researches (default PRECEDENT_USER or guest)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statsCmd)
}
