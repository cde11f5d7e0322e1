package cmd

import (
	"github.com/spf13/cobra"
	"github.com/wayfocus/wayfocus/internal/model"
	"github.com/wayfocus/wayfocus/internal/output"
	"github.com/wayfocus/wayfocus/internal/toplevel"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List open toplevel windows",
	Long:  "List every toplevel the compositor reports, with app id, title, handle id, and activated state.",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("activated", false, "Only list activated windows")
	listCmd.Flags().String("app", "", "Filter by app id substring")
	listCmd.Flags().Bool("pretty", false, "Pretty-print JSON output")
}

func runList(cmd *cobra.Command, args []string) error {
	tracker, err := toplevel.Connect(toplevel.Options{Socket: socketFlag()})
	if err != nil {
		return err
	}
	defer tracker.Close()

	activatedOnly, _ := cmd.Flags().GetBool("activated")
	appFilter, _ := cmd.Flags().GetString("app")

	windows := tracker.Windows()
	filtered := make([]model.Window, 0, len(windows))
	for _, w := range windows {
		if activatedOnly && !w.Activated {
			continue
		}
		if appFilter != "" && !containsFold(w.App, appFilter) {
			continue
		}
		filtered = append(filtered, w)
	}
	return output.Print(filtered)
}
