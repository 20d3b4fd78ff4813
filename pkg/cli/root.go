package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/client"
	"github.com/getmockd/mockserver/pkg/config"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// AdminURLEnv overrides the default admin API URL of remote commands.
const AdminURLEnv = "MOCKSERVER_ADMIN_URL"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	adminURL   string
	jsonOutput bool
	timeout    time.Duration
}

func (g *globalFlags) client() *client.Client {
	return client.New(g.adminURL, client.WithTimeout(g.timeout))
}

func defaultAdminURL() string {
	if u := os.Getenv(AdminURLEnv); u != "" {
		return u
	}
	return fmt.Sprintf("http://%s:%d", config.DefaultAdminHost, config.DefaultAdminPort)
}

// NewRootCommand builds the mockserver command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "mockserver",
		Short: "mockserver is a dynamically reconfigurable HTTP mock server",
		Long: `mockserver serves HTTP mocks that are added and removed at runtime.

Each mock binds a port, a path and optionally a method. A predicate
expression decides whether a request matches and a response expression
produces the reply. Every request is recorded and can be peeked through
the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.adminURL, "admin-url", defaultAdminURL(), "Admin API base URL (env "+AdminURLEnv+")")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", client.DefaultTimeout, "Admin API request timeout")

	root.AddCommand(
		newServeCmd(),
		newAddCmd(g),
		newRemoveCmd(g),
		newListCmd(g),
		newPeekCmd(g),
		newVersionCmd(g),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", formatError(err))
		os.Exit(1)
	}
}

func formatError(err error) string {
	if client.IsConnectionError(err) {
		return fmt.Sprintf(`%s

Suggestions:
  • Start the server: mockserver serve
  • Check the admin URL with --admin-url or $%s`, err, AdminURLEnv)
	}
	return err.Error()
}
