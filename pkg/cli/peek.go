package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/recorder/archive"
	"github.com/getmockd/mockserver/pkg/util"
)

type peekFlags struct {
	archivePath string
	since       time.Duration
	limit       int
	verbose     bool
}

func newPeekCmd(g *globalFlags) *cobra.Command {
	f := &peekFlags{}

	cmd := &cobra.Command{
		Use:   "peek [NAME]",
		Short: "Show the requests recorded for mocks",
		Long: `Show recorded requests and the responses sent for them, for one mock
or for all of them. Requests no mock accepted are listed under ` + recorder.UnmatchedBucket + `.

Events of removed mocks are shown by the first peek after the removal
and then discarded. With --archive the events are read from an event
archive file instead of a running server.`,
		Example: `  # Everything recorded so far
  mockserver peek

  # One mock, with request and response bodies
  mockserver peek r1 --verbose

  # The last hour of an archive, no server needed
  mockserver peek --archive events.db --since 1h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			var (
				byMock map[string][]recorder.Event
				err    error
			)
			if f.archivePath != "" {
				byMock, err = f.fromArchive(cmd.Context(), name)
			} else {
				byMock, err = fromServer(cmd.Context(), g, name)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, byMock)
			}
			if len(byMock) == 0 {
				fmt.Fprintln(w, "No events recorded")
				return nil
			}

			names := make([]string, 0, len(byMock))
			for n := range byMock {
				names = append(names, n)
			}
			slices.Sort(names)
			for _, n := range names {
				events := byMock[n]
				fmt.Fprintf(w, "%s (%d %s)\n", n, len(events), plural(len(events), "event", "events"))
				printEvents(w, events, f.verbose)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.archivePath, "archive", "", "Read events from this archive file")
	fs.DurationVar(&f.since, "since", 0, "Only archived events newer than this, e.g. 30m")
	fs.IntVar(&f.limit, "limit", 0, "Maximum archived events to show (0 for all)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Print request and response bodies")
	return cmd
}

func fromServer(ctx context.Context, g *globalFlags, name string) (map[string][]recorder.Event, error) {
	c := g.client()
	if name == "" {
		return c.PeekMocks(ctx)
	}
	events, err := c.PeekMock(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string][]recorder.Event{name: events}, nil
}

func (f *peekFlags) fromArchive(ctx context.Context, name string) (map[string][]recorder.Event, error) {
	arch, err := archive.Open(f.archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = arch.Close() }()

	q := archive.Query{Mock: name, Limit: f.limit}
	if f.since > 0 {
		q.Since = time.Now().Add(-f.since)
	}
	events, err := arch.List(ctx, q)
	if err != nil {
		return nil, err
	}

	byMock := make(map[string][]recorder.Event)
	for _, ev := range events {
		byMock[ev.Mock] = append(byMock[ev.Mock], ev)
	}
	return byMock, nil
}

// printEvents renders events as an indented table. Bodies printed in
// verbose mode are truncated to util.MaxLogBodySize.
func printEvents(w io.Writer, events []recorder.Event, verbose bool) {
	if len(events) == 0 {
		return
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "  WHEN\tMETHOD\tPATH\tSTATUS\tREQUEST\tRESPONSE\tDURATION")
	for _, ev := range events {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%s\t%s\t%dms\n",
			humanize.Time(ev.Timestamp),
			ev.Method,
			ev.Path,
			ev.Response.StatusCode,
			humanize.Bytes(uint64(len(ev.Request.Text))),
			humanize.Bytes(uint64(len(ev.Response.Text))),
			ev.DurationMs,
		)
	}
	_ = tw.Flush()

	if !verbose {
		return
	}
	for _, ev := range events {
		fmt.Fprintf(w, "  --- %s %s %s\n", ev.ID, ev.Method, ev.Path)
		for _, h := range ev.Request.Headers {
			fmt.Fprintf(w, "  > %s: %s\n", h.Name, h.Value)
		}
		if ev.Request.Text != "" {
			fmt.Fprintf(w, "  > %s\n", util.TruncateBody(ev.Request.Text, 0))
		}
		for _, h := range ev.Response.Headers {
			fmt.Fprintf(w, "  < %s: %s\n", h.Name, h.Value)
		}
		if ev.Response.Text != "" {
			fmt.Fprintf(w, "  < %s\n", util.TruncateBody(ev.Response.Text, 0))
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
