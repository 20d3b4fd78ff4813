package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/mock"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered mocks",
		Example: `  # List mocks of the running server
  mockserver list

  # List mocks of a collection file (no server needed)
  mockserver list --config mocks.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var mocks []*mock.Definition
			if configFile != "" {
				coll, err := config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config file: %w", err)
				}
				mocks = coll.Mocks
			} else {
				var err error
				mocks, err = g.client().ListMocks(cmd.Context())
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				if mocks == nil {
					mocks = []*mock.Definition{}
				}
				return output.JSON(w, mocks)
			}
			if len(mocks) == 0 {
				fmt.Fprintln(w, "No mocks registered")
				return nil
			}

			tw := output.Table(w)
			fmt.Fprintln(tw, "NAME\tPORT\tMETHOD\tPATH\tSTATUS\tSOAP")
			for _, m := range mocks {
				status := "-"
				if m.StatusCode != nil {
					status = fmt.Sprint(*m.StatusCode)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t/%s\t%s\t%t\n", m.Name, m.Port, methodLabel(m.Method), mock.NormalizePath(m.Path), status, m.Soap)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "List mocks from a collection file (no server needed)")
	return cmd
}

func methodLabel(m mock.Method) string {
	if m == mock.MethodAny {
		return "ANY"
	}
	return string(m)
}
