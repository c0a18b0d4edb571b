// Package cli is the csvload command line: one cobra command per stage plus
// scan, status, connections and sampler.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvload/internal/config"
	"csvload/internal/connections"
	"csvload/internal/logging"
	"csvload/internal/metrics"
	"csvload/internal/metrics/datadog"
	"csvload/internal/schema"
	"csvload/internal/tabular"
	_ "csvload/internal/tabular/all"

	_ "csvload/internal/storage/all"
)

// Version is set at build time.
var Version = "dev"

// app carries what every command needs once the root has resolved config.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
	closers []func() error
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRoot(&app{log: zap.NewNop()})
}

func newRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "csvload",
		Short: "Move delimited files into a relational database",
		Long: `csvload moves CSV/TSV files into a relational database in four steps:

  scan     record the files of a directory in a state document
  analyze  infer column types, nullability and booleans
  create   create one table per file on a bound connection
  import   bulk-load each file into its table

Each step picks up where the previous one left off and can be re-run safely.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	pf.String("metadata-dir", "", "directory holding state documents")
	pf.String("connections-path", "", "connection profiles file (YAML or JSON)")
	pf.String("engine", "", "tabular engine for analyze (duckdb|csv)")
	pf.Int("boolean-sample-size", 0, "distinct values sampled for boolean detection")
	pf.String("log-level", "", "debug|info|warn|error")
	pf.String("log-format", "", "console|json")
	pf.String("metrics-backend", "", "none|datadog")
	pf.String("metrics-tags", "", "extra metric tags, comma separated (k:v,k:v)")

	_ = root.RegisterFlagCompletionFunc("engine", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return tabular.Engines(), cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newScanCmd(a),
		newStageCmd(a, "analyze"),
		newStageCmd(a, "create"),
		newStageCmd(a, "import"),
		newStatusCmd(a),
		newConnectionsCmd(a),
		newSamplerCmd(a),
	)
	return root
}

// Execute runs the CLI and releases what setup acquired. The error has
// already been printed when Execute returns it.
func Execute(ctx context.Context) error {
	a := &app{log: zap.NewNop()}
	root := newRoot(a)
	err := errors.Join(root.ExecuteContext(ctx), a.close())
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.log = logger
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	a.setupMetrics()
	return nil
}

// setupMetrics never fails the command: a backend that cannot start leaves
// the nop backend in place.
func (a *app) setupMetrics() {
	switch a.cfg.Metrics.Backend {
	case "datadog":
		tags := datadog.ParseTagsCSV(a.cfg.Metrics.Tags)
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "csvload",
			Tags:       tags,
			FlushEvery: a.cfg.Metrics.FlushEvery,
		})
		if err != nil {
			a.log.Warn("metrics: datadog backend unavailable; using nop", zap.Error(err))
			return
		}
		a.log.Debug("metrics: datadog enabled", zap.Strings("tags", tags))
		metrics.SetBackend(b)
		a.closers = append(a.closers, func() error {
			metrics.SetBackend(nil)
			if err := b.Close(); err != nil {
				return fmt.Errorf("metrics: datadog close: %w", err)
			}
			return nil
		})
	default:
		a.log.Debug("metrics: disabled", zap.String("backend", a.cfg.Metrics.Backend))
	}
}

// close runs closers in reverse order. It is safe to call more than once.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) connections() (*connections.Set, error) {
	set, err := connections.Load(a.cfg.ConnectionsPath)
	if err != nil {
		return nil, err
	}
	a.log.Debug("connections loaded", zap.String("path", set.Path), zap.Int("profiles", len(set.Profiles)))
	return set, nil
}

func (a *app) inferer() (*schema.Engine, error) {
	opener, err := tabular.NewOpener(a.cfg.Engine)
	if err != nil {
		return nil, err
	}
	return schema.NewEngine(opener,
		schema.WithSampleSize(a.cfg.BooleanSampleSize),
		schema.WithLogger(a.log),
	), nil
}
