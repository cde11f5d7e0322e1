package cmd

import (
	"github.com/spf13/cobra"
	"github.com/wayfocus/wayfocus/internal/output"
	"github.com/wayfocus/wayfocus/internal/toplevel"
)

// CurrentResult is the output of a successful `current`.
type CurrentResult struct {
	Focused bool   `yaml:"focused"         json:"focused"`
	App     string `yaml:"app,omitempty"   json:"app,omitempty"`
	Title   string `yaml:"title,omitempty" json:"title,omitempty"`
	ID      uint32 `yaml:"id,omitempty"    json:"id,omitempty"`
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the currently focused window",
	Long: `Connect to the compositor, collect the initial toplevel burst, and
print the window that holds input focus. Reports focused: false when no
toplevel is activated (e.g. the desktop or a lock screen has focus).`,
	RunE: runCurrent,
}

func init() {
	rootCmd.AddCommand(currentCmd)
	currentCmd.Flags().Bool("pretty", false, "Pretty-print JSON output")
}

func runCurrent(cmd *cobra.Command, args []string) error {
	tracker, err := toplevel.Connect(toplevel.Options{Socket: socketFlag()})
	if err != nil {
		return err
	}
	defer tracker.Close()

	active := tracker.Active()
	if active == nil {
		return output.Print(CurrentResult{Focused: false})
	}
	return output.Print(CurrentResult{
		Focused: true,
		App:     active.App,
		Title:   active.Title,
		ID:      active.ID,
	})
}
