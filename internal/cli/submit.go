package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var submitWatch bool

var submitCmd = &cobra.Command{
	Use:   "submit <query>",
	Short: "Submit a new research",
	Long: `Submit a legal problem for research. The research runs in the background;
use 'precedent watch' to follow its progress or 'precedent show' to read
the result later.

Examples:
  precedent submit "my employer refuses to pay overtime"
  precedent submit --watch "neighbour built a fence on my land"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "follow progress after submitting")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	research, err := apiClient.Submit(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("submit research: %w", err)
	}

	fmt.Printf("Research %s submitted.\n", research.ID)

	if submitWatch {
		return watchResearch(cmd.Context(), research.ID)
	}

	fmt.Printf("Follow it with: precedent watch %s\n", research.ID)
	return nil
}
