package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/mock"
)

type addFlags struct {
	def        mock.Definition
	method     string
	statusCode int
	file       string
}

func newAddCmd(g *globalFlags) *cobra.Command {
	f := &addFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a mock on a running server",
		Example: `  # Answer "pong" to POST /echo bodies equal to "ping"
  mockserver add --name r1 --port 8080 --path /echo --method POST \
    --predicate 'body == "ping"' --response '"pong"'

  # Register every mock of a collection file
  mockserver add --file mocks.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := f.definitions(cmd)
			if err != nil {
				return err
			}

			c := g.client()
			added := make([]*mock.Definition, 0, len(defs))
			for _, def := range defs {
				created, err := c.AddMock(cmd.Context(), def)
				if err != nil {
					return fmt.Errorf("add %s: %w", def.Name, err)
				}
				added = append(added, created)
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, added)
			}
			for _, def := range added {
				fmt.Fprintf(w, "Added mock %s on :%d/%s\n", def.Name, def.Port, mock.NormalizePath(def.Path))
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.def.Name, "name", "n", "", "Unique mock name")
	fs.IntVarP(&f.def.Port, "port", "p", 0, "Port the mock listens on")
	fs.StringVar(&f.def.Path, "path", "", "Request path, compared without leading and trailing slashes")
	fs.StringVarP(&f.method, "method", "m", "", "HTTP method (default any)")
	fs.StringVar(&f.def.Predicate, "predicate", "", "Boolean expression a request must satisfy")
	fs.StringVar(&f.def.Response, "response", "", "Expression producing the response body")
	fs.BoolVar(&f.def.Soap, "soap", false, "Unwrap SOAP request envelopes and wrap responses")
	fs.IntVar(&f.statusCode, "status", 0, "Fixed response status code")
	fs.StringVar(&f.def.ResponseHeaders, "headers", "", `Response headers, e.g. "Content-Type: text/xml; X-Trace: 1"`)
	fs.StringVarP(&f.file, "file", "f", "", "Register every mock of a YAML or JSON collection")
	cmd.MarkFlagsMutuallyExclusive("file", "name")
	return cmd
}

// definitions returns the mocks to add, from the collection file or the flags.
func (f *addFlags) definitions(cmd *cobra.Command) ([]*mock.Definition, error) {
	if f.file != "" {
		coll, err := config.LoadFromFile(f.file)
		if err != nil {
			return nil, err
		}
		return coll.Mocks, nil
	}

	def := f.def.Clone()
	if f.method != "" {
		method, err := mock.ParseMethod(f.method)
		if err != nil {
			return nil, err
		}
		def.Method = method
	}
	if cmd.Flags().Changed("status") {
		def.StatusCode = &f.statusCode
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return []*mock.Definition{def}, nil
}
