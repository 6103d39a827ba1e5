package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/koustreak/autorest/internal/emit"
	"github.com/koustreak/autorest/internal/filestore"
	"github.com/koustreak/autorest/internal/filestore/minio"
)

func newGenCmd(opts *options) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate Go read models for every table",
		Example: `  autorest gen --database warehouse --owner reader --path ./models
  autorest gen -c autorest.yaml --owner reader --schema crsp --path ./models`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGen(cmd.Context(), opts, path)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "models", "output directory of the generated files")
	return cmd
}

func runGen(ctx context.Context, opts *options, path string) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	// Earlier output is only replaced once the whole catalog compiled.
	full := a.schema == ""
	em := emit.New(path, a.cfg.Emit, a.log)
	if full {
		em.BeforeWrite(func(context.Context) error {
			removed, err := emit.Clean(path)
			if err != nil {
				return err
			}
			a.log.Debugf("removed %d previous generated files from %s", len(removed), path)
			return nil
		})
	}

	if a.cfg.Publish.Enabled() {
		store, err := minio.New(ctx, &a.cfg.Publish)
		if err != nil {
			return err
		}
		defer store.Close()

		pub := filestore.NewPublisher(store, a.cfg.Publish.Bucket, a.cfg.Publish.Prefix)
		em.BeforeWrite(func(ctx context.Context) error {
			if full {
				return pub.Prepare(ctx)
			}
			return store.EnsureBucket(ctx, a.cfg.Publish.Bucket)
		})
		em.WithPublisher(pub)
	}

	if _, err := a.compile(ctx, em); err != nil {
		return err
	}

	a.log.With().Str("path", path).Int("files", len(em.Files())).Logger().Info("generation finished")
	return nil
}
