package main

import (
	"context"

	"github.com/koustreak/autorest/internal/catalog"
	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/config"
	"github.com/koustreak/autorest/internal/database"
	"github.com/koustreak/autorest/internal/database/postgres"
	"github.com/koustreak/autorest/internal/database/sqldb"
	"github.com/koustreak/autorest/internal/errs"
	"github.com/koustreak/autorest/internal/logger"
	"github.com/koustreak/autorest/internal/naming"
	"github.com/koustreak/autorest/internal/typemap"
)

// options are the flags shared by every subcommand.
type options struct {
	configFile string
	database   string
	dsn        string
	owner      string
	schema     string
	verbose    bool
}

// app is the state shared by gen and serve once the catalog is reachable.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     database.DB
	reader *catalog.Reader
	names  *naming.Sanitizer
	types  *typemap.Mapper
	owner  string
	schema string // resolved filter, empty for all schemata
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.database != "" {
		cfg.Database.Name = opts.database
	}
	if opts.dsn != "" {
		cfg.Database.DSN = opts.dsn
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if cfg.Database.DSN == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "no connection string: set database.dsn or --dsn")
	}
	if opts.owner == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "--owner is required")
	}
	return cfg, nil
}

func openDB(ctx context.Context, cfg *database.Config) (database.DB, error) {
	switch cfg.Driver {
	case database.DriverStdlib:
		return sqldb.New(ctx, cfg)
	default:
		return postgres.New(ctx, cfg)
	}
}

// setup connects to the catalog and resolves the schema filter. A filter
// outside the owner's schemata is dropped with a warning.
func setup(ctx context.Context, opts *options) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log := logger.New(&cfg.Log)

	types, err := typemap.New(cfg.Typemap)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log.With().Str("database", cfg.Database.Name).Logger(),
		db:     db,
		reader: catalog.NewReader(db),
		names:  naming.New(cfg.Naming),
		types:  types,
		owner:  opts.owner,
	}

	if opts.schema != "" {
		owned, err := a.reader.ListOwnedSchemas(ctx, a.owner)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.schema, err = catalog.ResolveSchema(naming.SchemaIdent(opts.schema), owned)
		if err != nil {
			a.log.WarnWith("ignoring schema filter", map[string]any{
				"schema": opts.schema,
				"owner":  a.owner,
				"error":  err.Error(),
			})
		}
	}
	return a, nil
}

func (a *app) close() {
	a.db.Close()
}

// compile streams the catalog into em.
func (a *app) compile(ctx context.Context, em compiler.Emitter) (*compiler.Result, error) {
	rows, err := a.reader.ListColumns(ctx, catalog.Filter{Owner: a.owner, Schema: a.schema})
	if err != nil {
		return nil, err
	}

	res, err := compiler.New(a.names, a.types, a.log).Compile(ctx, rows, em)
	if err != nil {
		return nil, err
	}

	a.log.With().
		Int("schemas", res.Units).
		Int("tables", res.Tables).
		Int("warnings", len(res.Warnings)).
		Logger().Info("catalog compiled")
	return res, nil
}
