package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
	"github.com/getmockd/mockserver/pkg/recorder"
)

func newRemoveCmd(g *globalFlags) *cobra.Command {
	var skipReport bool

	cmd := &cobra.Command{
		Use:     "remove NAME...",
		Aliases: []string{"rm"},
		Short:   "Unregister mocks from a running server",
		Long: `Unregister mocks. Their recorded events are printed and stay
available to one more peek unless --skip-report is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := g.client()
			removed := make(map[string][]recorder.Event, len(args))
			for _, name := range args {
				events, err := c.RemoveMock(cmd.Context(), name, skipReport)
				if err != nil {
					return fmt.Errorf("remove %s: %w", name, err)
				}
				removed[name] = events
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, removed)
			}
			for _, name := range args {
				fmt.Fprintf(w, "Removed mock %s\n", name)
				if !skipReport {
					printEvents(w, removed[name], false)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipReport, "skip-report", false, "Discard the mock's recorded events")
	return cmd
}
