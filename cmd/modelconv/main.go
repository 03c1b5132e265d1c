// Command modelconv converts energy-system model data between GMPL
// datafiles, CSV folders, data packages and SQL databases.
//
// Usage:
//
//	modelconv convert FROM TO FROM_PATH TO_PATH [flags]
//	modelconv validate PACKAGE_DIR [flags]
//	modelconv defaults OUT_CSV [flags]
//
// Every flag has a MODELCONV_* environment counterpart; flags win.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"modelconv/internal/catalog"
	"modelconv/internal/config"
	"modelconv/internal/convert"
	"modelconv/internal/datapackage"
	"modelconv/internal/logging"
	"modelconv/internal/metrics"
	"modelconv/internal/metrics/datadog"
	"modelconv/internal/schema"
	"modelconv/internal/storage"
	_ "modelconv/internal/storage/all"
	"modelconv/internal/textio"
)

// backendCloser is a metrics backend the command owns for one run.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, job string, tags []string) (backendCloser, error)
	NewRepository  storage.Factory
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, job string, tags []string) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    job,
				Tags:       tags,
				FlushEvery: 60 * time.Second,
			})
		},
	})
	stop()
	os.Exit(code)
}

// run executes the command line and returns an exit code: 0 on success, 1 on
// any error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	root, a := newRootCmd(d)
	root.SetArgs(args)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)
	err := root.ExecuteContext(ctx)
	a.teardown()
	if err != nil {
		fmt.Fprintf(d.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	deps    deps
	cfg     config.Run
	verbose bool

	log     *logrus.Logger
	cat     *catalog.Catalog
	backend backendCloser
}

func newRootCmd(d deps) (*cobra.Command, *app) {
	a := &app{deps: d, cfg: config.FromEnv(config.Default())}

	root := &cobra.Command{
		Use:           "modelconv",
		Short:         "Convert energy-system model data between datafile, CSV, data package and SQL.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.CatalogPath, "config", a.cfg.CatalogPath, "entity catalog YAML (default: bundled OSeMOSYS catalog)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (trace|debug|info|warn|error)")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format (text|json)")
	pf.StringVar(&a.cfg.MetricsBackend, "metrics", a.cfg.MetricsBackend, "metrics backend (none|datadog)")
	pf.StringVar(&a.cfg.MetricsTags, "metrics-tags", a.cfg.MetricsTags, "extra metrics tags, comma separated")

	root.AddCommand(newConvertCmd(a), newValidateCmd(a), newDefaultsCmd(a))
	return root, a
}

func (a *app) setup(ctx context.Context) error {
	if a.verbose {
		a.cfg.LogLevel = "debug"
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(logging.Options{Level: a.cfg.LogLevel, Format: a.cfg.LogFormat, Out: a.deps.Stderr})
	if err != nil {
		return err
	}
	a.log = log

	cat, err := catalog.LoadOrDefault(a.cfg.CatalogPath)
	if err != nil {
		return err
	}
	a.cat = cat
	log.WithFields(logrus.Fields{"catalog": catalogName(a.cfg.CatalogPath), "entities": cat.Len()}).Debug("catalog loaded")

	switch a.cfg.MetricsBackend {
	case "datadog":
		if a.deps.BackendFactory == nil {
			return fmt.Errorf("metrics: no datadog backend available")
		}
		tags := datadog.ParseTagsCSV(a.cfg.MetricsTags)
		b, err := a.deps.BackendFactory(ctx, a.cfg.MetricsJob, tags)
		if err != nil {
			log.WithError(err).Warn("metrics: datadog backend init failed; metrics disabled")
			break
		}
		a.backend = b
		metrics.SetBackend(b)
		log.WithFields(logrus.Fields{"backend": "datadog", "job": a.cfg.MetricsJob, "tags": tags}).Debug("metrics enabled")
	default:
		log.Debug("metrics disabled")
	}
	return nil
}

// teardown closes the metrics backend, which flushes it one last time.
func (a *app) teardown() {
	if a.backend == nil {
		return
	}
	err := a.backend.Close()
	metrics.SetBackend(nil)
	a.backend = nil
	if err != nil && a.log != nil {
		a.log.WithError(err).Warn("metrics: final flush failed")
	}
}

func (a *app) converter() *convert.Converter {
	return convert.New(a.cat, a.log, convert.Options{
		SkipInvalid:  a.cfg.SkipInvalid(),
		OmitDefaults: a.cfg.OmitDefaults,
		Metadata:     schema.Metadata{Name: a.cfg.PackageName, Title: a.cfg.PackageTitle},
		DB: storage.Config{
			Kind: a.cfg.DBKind,
			DSN:  a.cfg.DSN,
		},
		DBSchema:      a.cfg.DBSchema,
		ForeignKeys:   a.cfg.ForeignKeys,
		BatchSize:     a.cfg.BatchSize,
		NewRepository: a.deps.NewRepository,
	})
}

func newConvertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert FROM TO FROM_PATH TO_PATH",
		Short: "Convert between datafile, datapackage, csv and sql",
		Long: `Convert model data. FROM and TO are datafile, datapackage, csv or sql.
For sql the path is the database DSN (a file path for sqlite) unless --dsn
is given; --db-kind picks the backend (` + strings.Join(storage.Kinds(), ", ") + `).`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := convert.ParseFormat(args[0])
			if err != nil {
				return err
			}
			to, err := convert.ParseFormat(args[1])
			if err != nil {
				return err
			}
			c := a.converter()
			a.log.WithFields(logrus.Fields{"run_id": c.RunID(), "from": from, "to": to}).Info("conversion started")
			if err := c.Convert(cmd.Context(), from, to, args[2], args[3]); err != nil {
				return err
			}
			a.log.WithField("run_id", c.RunID()).Info("conversion finished")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.cfg.OnInvalid, "on-invalid", a.cfg.OnInvalid, "what to do with an entity whose rows fail type checks (fail|skip)")
	f.BoolVar(&a.cfg.OmitDefaults, "omit-defaults", a.cfg.OmitDefaults, "leave out parameter rows equal to the default when writing a datafile")
	f.StringVar(&a.cfg.DBKind, "db-kind", a.cfg.DBKind, "database backend for sql")
	f.StringVar(&a.cfg.DSN, "dsn", a.cfg.DSN, "database DSN for sql (overrides the path argument)")
	f.StringVar(&a.cfg.DBSchema, "db-schema", a.cfg.DBSchema, "database schema for sql tables (postgres, mssql)")
	f.IntVar(&a.cfg.BatchSize, "batch-size", a.cfg.BatchSize, "rows per insert batch")
	f.BoolVar(&a.cfg.ForeignKeys, "foreign-keys", a.cfg.ForeignKeys, "declare foreign keys on sql tables")
	f.StringVar(&a.cfg.PackageName, "name", a.cfg.PackageName, "data package name")
	f.StringVar(&a.cfg.PackageTitle, "title", a.cfg.PackageTitle, "data package title")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate PACKAGE_DIR",
		Short: "Check the foreign and primary keys of a data package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			warnings, err := a.converter().Validate(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintln(out, w.Error())
			}
			if len(warnings) == 0 {
				fmt.Fprintln(out, "package is valid")
				return nil
			}
			if strict {
				return fmt.Errorf("%d table(s) failed validation", len(warnings))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&a.cfg.OnInvalid, "on-invalid", a.cfg.OnInvalid, "what to do with an entity whose rows fail type checks (fail|skip)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any table has warnings")
	return cmd
}

func newDefaultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "defaults OUT_CSV",
		Short: "Write the default value of every parameter as name,default_value",
		Long:  "Write the default value of every catalog parameter. Use - for stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" {
				return datapackage.WriteDefaults(cmd.OutOrStdout(), a.cat)
			}
			var b strings.Builder
			if err := datapackage.WriteDefaults(&b, a.cat); err != nil {
				return err
			}
			if err := textio.WriteFileAtomic(args[0], []byte(b.String())); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			a.log.WithFields(logrus.Fields{"path": args[0], "params": len(a.cat.Params())}).Info("defaults written")
			return nil
		},
	}
}

func catalogName(path string) string {
	if path == "" {
		return "bundled"
	}
	return path
}
