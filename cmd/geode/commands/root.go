// Package commands implements the geode subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/qri-io/geode"
	"github.com/qri-io/geode/config"
	"github.com/qri-io/geode/internal/observability"
	"github.com/qri-io/geode/zarr"
)

const shutdownTimeout = 5 * time.Second

// App holds the state shared by every subcommand of one invocation.
type App struct {
	configPath  string
	memory      string
	logLevel    string
	metricsAddr string
	storePath   string

	cfg     *config.Config
	budget  int64
	logger  *slog.Logger
	store   zarr.Store
	metrics *observability.ChunkMetrics
	server  *http.Server
}

// NewRootCommand builds the geode command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&App{})
}

// newRootCommand builds the tree around app. A store already set on app is
// used as is.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "geode",
		Short: "Out-of-core reductions and temporal aggregates over gridded arrays",
		Long: `geode evaluates reductions and calendar aggregates over arrays too large
for memory, streaming them chunk by chunk from a zarr store.

Commands:
  synth      Write a synthetic monthly dataset
  list       List the variables in a store
  reduce     Reduce a variable over named axes
  aggregate  Compute a temporal aggregate or trend
  detrend    Remove the climatological trend from a variable`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return app.setup(cmd) },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return app.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "config file (default ./geode.yaml)")
	flags.StringVar(&app.memory, "memory", "", "memory budget per chunk, e.g. 64MiB")
	flags.StringVar(&app.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&app.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flags.StringVar(&app.storePath, "store", "", "zarr store directory")

	root.AddCommand(
		newSynthCommand(app),
		newListCommand(app),
		newReduceCommand(app),
		newAggregateCommand(app),
		newDetrendCommand(app),
	)

	return root
}

func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("memory") {
		cfg.Engine.Memory = a.memory
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if flags.Changed("store") {
		cfg.Store.Kind = config.StoreLocal
		cfg.Store.Path = a.storePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	if a.budget, err = cfg.MemoryBudget(); err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	a.logger = observability.NewLogger(cmd.ErrOrStderr(), level, cfg.Logging.Format)

	switch {
	case a.store != nil:
	case cfg.Store.Kind == config.StoreMemory:
		a.store = zarr.NewMemoryStore()
	default:
		if a.store, err = zarr.NewLocalStore(cfg.Store.Path); err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	if a.metrics, err = observability.NewChunkMetrics(reg); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(reg, cfg.Metrics.Addr); err != nil {
			return err
		}
	}

	a.logger.Debug("configured",
		"memory", humanize.IBytes(uint64(a.budget)),
		"store", a.store.Type(),
		"path", cfg.Store.Path)

	return nil
}

func (a *App) serveMetrics(reg *prometheus.Registry, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return nil
}

func (a *App) teardown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return a.server.Shutdown(ctx)
}

// options are the evaluation options every subcommand passes to the engine.
func (a *App) options() []geode.Option {
	return []geode.Option{
		geode.WithMemoryBudget(a.budget),
		geode.WithLogger(a.logger),
		geode.WithObserver(a.metrics),
		geode.WithProgress(observability.NewLogProgress(a.logger, 0.1)),
	}
}

// writeOptions derives chunking and compression for stored results.
func (a *App) writeOptions() zarr.WriteOptions {
	return zarr.WriteOptions{
		Chunks: []int{a.cfg.Store.ChunkSteps},
		Raw:    a.cfg.Store.Compressor == "none",
	}
}

func (a *App) open(ctx context.Context, name string) (*geode.Var, error) {
	return zarr.OpenVar(ctx, a.store, "", name)
}

func (a *App) write(ctx context.Context, v *geode.Var) error {
	began := time.Now()
	arr, err := zarr.WriteVar(ctx, a.store, "", v, a.writeOptions(), a.options()...)
	if err != nil {
		return err
	}
	a.logger.Info("wrote variable",
		"name", v.Name(),
		"shape", arr.Shape(),
		"elements", v.Size(),
		"elapsed", time.Since(began).Round(time.Millisecond).String())
	return nil
}
