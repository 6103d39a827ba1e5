// Command autorest compiles a PostgreSQL catalog into Go read models and
// serves the tables as an adaptive read-only REST API.
//
// Usage:
//
//	autorest gen   --database warehouse --owner reader --path ./models
//	autorest serve --database warehouse --owner reader --addr :8080
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "autorest",
		Short:         "Generate read models and a read API from a PostgreSQL catalog",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "path to the YAML config file")
	pf.StringVarP(&opts.database, "database", "d", "", "database identifier (overrides database.name)")
	pf.StringVar(&opts.dsn, "dsn", "", "connection string (overrides database.dsn)")
	pf.StringVarP(&opts.owner, "owner", "o", "", "role owning the schemata to expose")
	pf.StringVarP(&opts.schema, "schema", "s", "", "restrict to a single schema")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log every table at debug level")

	root.AddCommand(newGenCmd(opts), newServeCmd(opts))
	return root
}
