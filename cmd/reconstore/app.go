package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"reconstore/internal/config"
	"reconstore/internal/logger"
	"reconstore/internal/metrics"
	"reconstore/internal/repository/sqlite"
)

// Version of reconstore being run
const Version = "v0.1.0"

// ingestTimeout bounds a live nmap scan
const ingestTimeout = 10 * time.Minute

// runner carries what every command needs. The store is opened on first use
// so that commands like "config show" work without a database.
type runner struct {
	ctx context.Context
	out io.Writer

	cfg      *config.Config
	cfgPath  string
	log      zerolog.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	store    *sqlite.Store
}

func newApp(ctx context.Context, out io.Writer) *cli.App {
	r := &runner{ctx: ctx, out: out}

	app := cli.NewApp()
	app.Name = "reconstore"
	app.Usage = "record and query SMB reconnaissance results"
	app.Version = Version
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "config file (default: search the usual locations)",
			EnvVar: config.EnvConfigPath,
		},
		cli.StringFlag{
			Name:  "db",
			Usage: "store file, overrides database.path",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "log at debug level",
		},
	}
	app.Before = r.before
	app.After = r.after
	app.Commands = r.commands()
	return app
}

func (r *runner) before(c *cli.Context) error {
	var err error
	if path := c.GlobalString("config"); path != "" {
		r.cfg, r.cfgPath, err = config.LoadFromPath(path)
	} else {
		r.cfg, r.cfgPath, err = config.Load()
	}
	if err != nil {
		return err
	}

	if db := c.GlobalString("db"); db != "" {
		r.cfg.Database.Path = db
	}
	if c.GlobalBool("debug") {
		r.cfg.Logging.Debug = true
	}

	if err := logger.Init(r.cfg.Logging); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	r.log = logger.WithComponent("cli")

	r.registry = prometheus.NewRegistry()
	if r.recorder, err = metrics.New(r.registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	return nil
}

func (r *runner) after(c *cli.Context) error {
	if r.store == nil {
		return nil
	}

	var err error
	if path := r.cfg.Metrics.Textfile; path != "" {
		if err = prometheus.WriteToTextfile(path, r.registry); err != nil {
			err = fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	if cerr := r.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	r.store = nil
	return err
}

func (r *runner) storeOptions() []sqlite.Option {
	return []sqlite.Option{
		sqlite.WithLogger(logger.WithComponent("store")),
		sqlite.WithMetrics(r.recorder),
		sqlite.WithBusyTimeout(r.cfg.Database.BusyTimeout.Duration()),
		sqlite.WithJournalMode(r.cfg.Database.JournalMode),
		sqlite.WithAdminLinkMode(sqlite.ParseAdminLinkMode(r.cfg.Compat.AdminLinkMode)),
		sqlite.WithIndependentUserUpdates(r.cfg.Compat.IndependentUserUpdates),
	}
}

// openStore opens the configured store, creating the schema on first use
func (r *runner) openStore() (*sqlite.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	s, err := sqlite.New(r.cfg.Database.Path, r.storeOptions()...)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", r.cfg.Database.Path, err)
	}
	r.log.Debug().Str("path", r.cfg.Database.Path).Msg("store opened")
	r.store = s
	return s, nil
}

// withStore adapts a store action to a cli.ActionFunc
func (r *runner) withStore(fn func(c *cli.Context, s *sqlite.Store) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := r.openStore()
		if err != nil {
			return err
		}
		return fn(c, s)
	}
}

func (r *runner) table() *tabwriter.Writer {
	return tabwriter.NewWriter(r.out, 0, 8, 2, ' ', 0)
}
