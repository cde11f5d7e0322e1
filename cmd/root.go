package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wayfocus/wayfocus/internal/output"
	"github.com/wayfocus/wayfocus/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "wayfocus",
	Short: "Track the focused window on wlroots compositors",
	Long: `wayfocus is a client for the wlr-foreign-toplevel-management
compositor extension. It reports which toplevel window currently holds
input focus, lists open toplevels, and streams focus changes for
panels, bars, and automation.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("format", "yaml", "Output format: yaml, json")
	rootCmd.PersistentFlags().String("socket", "", "Compositor socket name or path (default $WAYLAND_DISPLAY)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, _ := rootCmd.PersistentFlags().GetString("format")
		switch format {
		case "yaml":
			output.OutputFormat = output.FormatYAML
		case "json":
			output.OutputFormat = output.FormatJSON
		default:
			return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
		}
		if prettyFlag := cmd.Flags().Lookup("pretty"); prettyFlag != nil {
			if pretty, err := cmd.Flags().GetBool("pretty"); err == nil && pretty {
				output.PrettyOutput = true
			}
		}
		return nil
	}
}

// socketFlag returns the persistent --socket value.
func socketFlag() string {
	socket, _ := rootCmd.PersistentFlags().GetString("socket")
	return socket
}
