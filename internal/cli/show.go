package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showEvents bool

var showCmd = &cobra.Command{
	Use:   "show <research-id>",
	Short: "Show a research and its report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVarP(&showEvents, "events", "e", false, "include the progress event log")
}

func runShow(cmd *cobra.Command, args []string) error {
	research, err := apiClient.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("load research: %w", err)
	}

	fmt.Printf("Research %s [%s]\n", research.ID, research.Status)
	fmt.Printf("Query:    %s\n", research.Query)
	fmt.Printf("Created:  %s by %s\n", research.CreatedAt.Format("2006-01-02 15:04:05"), research.CreatedBy)
	if research.ProblemDescription != nil {
		fmt.Printf("Problem:  %s\n", *research.ProblemDescription)
	}
	if research.Question != nil {
		fmt.Printf("Question: %s\n", *research.Question)
	}
	if research.Error != nil {
		fmt.Printf("\nError: %s\n", *research.Error)
	}
	if research.Result != nil {
		fmt.Printf("\n%s\n", *research.Result)
	}
	if research.Report != nil {
		fmt.Printf("\n%s\n", *research.Report)
	}

	if showEvents && len(research.Events) > 0 {
		fmt.Printf("\nEvents (%d):\n", len(research.Events))
		for _, ev := range research.Events {
			fmt.Printf("  %s  %s%s\n", ev.At.Format("15:04:05"), ev.Type, formatEventData(ev.Data))
		}
	}
	return nil
}

func formatEventData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	if keyword, ok := data["search_keyword"]; ok {
		return fmt.Sprintf("  %q", keyword)
	}
	if file, ok := data["file_name"]; ok {
		return fmt.Sprintf("  %v", file)
	}
	return ""
}
