package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listPage    int
	listPerPage int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List researches",
	Long: `List researches, newest first.

Examples:
  precedent list
  precedent list --page 2 --per-page 10`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")
	listCmd.Flags().IntVarP(&listPerPage, "per-page", "n", 20, "results per page")
}

func runList(cmd *cobra.Command, args []string) error {
	researches, meta, err := apiClient.List(cmd.Context(), listPage, listPerPage)
	if err != nil {
		return fmt.Errorf("list researches: %w", err)
	}

	if len(researches) == 0 {
		fmt.Println("No researches found.")
		return nil
	}

	fmt.Printf("Researches (page %d/%d, %d total):\n\n", meta.CurrentPage, meta.LastPage, meta.Total)
	for _, r := range researches {
		fmt.Printf("- %s [%s] %s\n", r.ID, r.Status, truncate(r.Query, 70))
		if verbose {
			fmt.Printf("  created %s by %s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.CreatedBy)
			if r.Question != nil {
				fmt.Printf("  question: %s\n", *r.Question)
			}
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
