package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/stage"
)

var infoJSON bool

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the evaluation stages in run order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := stage.NewRegistry(appConfig.Pipeline.Stages)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if infoJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(registry.Stages())
		}
		for _, d := range registry.Stages() {
			fmt.Fprintf(out, "%d. %s\n", d.Index+1, d.Label)
		}
		return nil
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Describe what the analysis covers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		caps := model.Capabilities()

		out := cmd.OutOrStdout()
		if infoJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(caps)
		}

		names := make([]string, 0, len(caps))
		for name := range caps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "%-28s %s\n", name, caps[name])
		}
		return nil
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&infoJSON, "json", false, "print as JSON")
	capabilitiesCmd.Flags().BoolVar(&infoJSON, "json", false, "print as JSON")

	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}
