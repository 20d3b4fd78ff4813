package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/engine/api"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/recorder"
	"github.com/getmockd/mockserver/pkg/recorder/archive"
)

// adminShutdownTimeout bounds the graceful shutdown of the admin API.
const adminShutdownTimeout = 10 * time.Second

type serveFlags struct {
	configFile  string
	maxBodySize string
}

// flagKeys maps serve flags to configuration keys. A flag set on the
// command line overrides the file and the environment.
var flagKeys = map[string]string{
	"admin-host":          "admin.host",
	"admin-port":          "admin.port",
	"bind-host":           "bind_host",
	"mocks":               "mocks_file",
	"archive":             "archive_path",
	"eval-timeout":        "eval_timeout",
	"max-events-per-mock": "max_events_per_mock",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"log-file":            "log.file.path",
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server (foreground)",
		Long: `Start the mock engine and its admin API in the foreground.

Settings are read from flags, MOCKSERVER_* environment variables and an
optional configuration file (mockserver.yaml in ., ~/.mockserver or
/etc/mockserver), in that order of precedence.`,
		Example: `  # Start with defaults (admin API on 127.0.0.1:4290)
  mockserver serve

  # Preload mocks and archive every request
  mockserver serve --mocks mocks.yaml --archive events.db

  # Expose the admin API on all interfaces
  mockserver serve --admin-host 0.0.0.0 --admin-port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.maxBodySize != "" {
				n, err := humanize.ParseBytes(f.maxBodySize)
				if err != nil {
					return fmt.Errorf("invalid --max-body-size: %w", err)
				}
				v.Set("max_body_size", int64(n))
			}
			cfg, err := config.Load(f.configFile, v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "Path to the configuration file")
	fs.String("admin-host", config.DefaultAdminHost, "Admin API host")
	fs.Int("admin-port", config.DefaultAdminPort, "Admin API port")
	fs.String("bind-host", "", "Interface mock listeners bind to (default all)")
	fs.String("mocks", "", "Mock collection (YAML or JSON) registered at startup")
	fs.String("archive", "", "SQLite file every recorded event is archived to")
	fs.Duration("eval-timeout", config.DefaultEvalTimeout, "Timeout of a single predicate or response evaluation")
	fs.Int("max-events-per-mock", 0, "Events kept per mock, oldest dropped first (0 keeps all)")
	fs.StringVar(&f.maxBodySize, "max-body-size", "", "Largest request body read for matching, e.g. 10MB")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
	fs.String("log-file", "", "Also write JSON logs to this file, rotated")

	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(flag))
	}
	return cmd
}

// runServe runs the engine and the admin API until ctx is done.
func runServe(ctx context.Context, cfg *config.ServerConfiguration, out io.Writer) error {
	log, logCloser := logging.Open(cfg.Log.Logging())
	defer func() { _ = logCloser.Close() }()

	m := metrics.New()
	opts := []engine.ServerOption{
		engine.WithLogger(log),
		engine.WithMetrics(m),
	}
	if cfg.ArchivePath != "" {
		arch, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		sink := recorder.NewAsyncSink(arch, 0, log.With("component", "archive"))
		defer func() {
			_ = sink.Close()
			if err := arch.Close(); err != nil {
				log.Warn("failed to close archive", "error", err)
			}
		}()
		opts = append(opts, engine.WithSink(sink))
		log.Info("archiving events", "path", cfg.ArchivePath)
	}

	eng := engine.NewServer(cfg, opts...)
	if err := eng.Start(); err != nil {
		return err
	}

	if cfg.MocksFile != "" {
		if err := preload(eng, cfg.MocksFile, log); err != nil {
			_ = eng.Stop()
			return err
		}
	}

	admin := api.NewServer(eng, cfg.Admin.Addr(),
		api.WithLogger(log.With("component", "admin")),
		api.WithMetrics(m),
	)
	if err := admin.Start(); err != nil {
		_ = eng.Stop()
		return err
	}

	fmt.Fprintf(out, "mockserver %s\n", buildVersion().Version)
	fmt.Fprintf(out, "  admin API: http://%s\n", admin.Addr())
	fmt.Fprintf(out, "  mocks:     %d\n", len(eng.ListMocks()))
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	// The engine stops only once the admin API has drained, so no admin
	// request can register a mock behind the engine's back.
	adminStopped := make(chan struct{})
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(adminStopped)
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		defer cancel()
		return admin.Stop(shutdownCtx)
	})
	group.Go(func() error {
		<-adminStopped
		return eng.Stop()
	})

	err := group.Wait()
	log.Info("mockserver stopped")
	return err
}

func preload(eng *engine.Server, path string, log *slog.Logger) error {
	coll, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load mocks: %w", err)
	}
	n, err := eng.LoadMocks(coll)
	if err != nil {
		return fmt.Errorf("failed to register mocks from %s: %w", path, err)
	}
	log.Info("mocks loaded", "path", path, "count", n)
	return nil
}
