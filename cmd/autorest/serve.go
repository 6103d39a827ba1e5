package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/autorest/internal/compiler"
	"github.com/koustreak/autorest/internal/endpoint"
	"github.com/koustreak/autorest/internal/estimate"
	"github.com/koustreak/autorest/internal/server"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every table as a read-only REST endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *options, addr string) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	var units compiler.Collector
	if _, err := a.compile(ctx, &units); err != nil {
		return err
	}

	configurator := endpoint.NewConfigurator(a.db, a.reader, estimate.New(a.reader), a.names, a.cfg.Endpoint, a.log)

	var tables []*compiler.TableSpec
	for _, u := range units.Units() {
		tables = append(tables, u.Ordered()...)
	}

	reg := endpoint.NewRegistry()
	failures, err := reg.RegisterAll(ctx, configurator, a.cfg.Database.Name, a.cfg.Server.Namespace,
		tables, a.cfg.Server.RegisterWorkers, a.log)
	if err != nil {
		return err
	}
	a.log.With().Int("endpoints", reg.Len()).Int("failed", len(failures)).Logger().Info("endpoints registered")

	srv := server.New(reg, server.Options{
		QueryTimeout: a.cfg.Database.QueryTimeout,
		DefaultLimit: a.cfg.Endpoint.DefaultLimit,
		MaxLimit:     a.cfg.Endpoint.MaxLimit,
	}, a.log)
	return srv.ListenAndServe(ctx, addr)
}
