package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nickm615/personalization-custom-app-example/pkg/config"
	"github.com/Nickm615/personalization-custom-app-example/pkg/excerpt"
	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
	"github.com/Nickm615/personalization-custom-app-example/pkg/metrics"
	"github.com/Nickm615/personalization-custom-app-example/pkg/panel"
	"github.com/Nickm615/personalization-custom-app-example/pkg/personalization"
	"github.com/Nickm615/personalization-custom-app-example/pkg/server"
	"github.com/Nickm615/personalization-custom-app-example/pkg/store"
)

// deps is the object graph every command works with.
type deps struct {
	store   *store.Store // nil unless reading from SQLite
	client  kontent.Client
	metrics *metrics.Recorder
	loader  *panel.Loader
	manager *personalization.Manager
	close   func()
}

func (a *app) open() (*deps, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	d := &deps{metrics: metrics.NewRecorder(), close: func() {}}

	var client kontent.Client
	switch a.cfg.Source.Driver {
	case config.SourceSQLite:
		db, err := store.OpenDB(a.cfg.Source.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.logger.Debug("using sqlite source", zap.String("path", a.cfg.Source.SQLitePath))
		d.store = store.New(db)
		d.close = func() { db.Close() }
		client = d.store
	default:
		client = kontent.NewHTTPClient(a.cfg.Kontent.BaseURL, a.cfg.Kontent.ManagementAPIKey,
			kontent.WithHTTPClient(&http.Client{Timeout: a.cfg.GetTimeout()}),
			kontent.WithRetry(a.cfg.Kontent.MaxRetries, a.cfg.GetRetryBackoff()),
			kontent.WithLogger(a.logger),
		)
	}
	d.client = kontent.Observed(client, d.metrics)

	d.loader = panel.NewLoader(d.client, panel.LoaderConfig{
		Codenames:     a.cfg.Personalization,
		Concurrency:   a.cfg.Aggregation.Concurrency,
		ExcerptLength: a.cfg.Panel.ExcerptLength,
		AppURL:        a.cfg.Panel.AppURL,
		Logger:        a.logger,
		Observer:      d.metrics,
		Excerpts:      excerpt.New(a.logger),
	})
	d.manager = personalization.NewManager(d.client, personalization.WithLogger(a.logger))
	return d, nil
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the panel and variant API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.open()
			if err != nil {
				return err
			}
			defer d.close()

			svc := server.NewService(d.loader, d.manager, d.metrics.Handler(), a.logger)
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           svc.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx := cmd.Context()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GetShutdownTimeout())
				defer cancel()
				a.logger.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "show ITEM_ID LANGUAGE_ID",
		Short: "Print the panel for one content item",
		Long: `Print the panel state as JSON: the item summary, its linked variants
and the audience list. With --watch the panel is refreshed on that interval
until interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.environmentID()
			if err != nil {
				return err
			}
			d, err := a.open()
			if err != nil {
				return err
			}
			defer d.close()

			p := panel.NewPanel(d.loader, panel.WithLogger(a.logger), panel.WithRefreshObserver(d.metrics))
			defer p.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			refresh := func() error {
				_, err := p.Refresh(ctx, env, args[0], args[1])
				if errors.Is(err, panel.ErrStale) || errors.Is(err, context.Canceled) {
					return nil
				}
				if perr := printJSON(out, p.State()); perr != nil {
					return perr
				}
				return err
			}

			if watch <= 0 {
				return refresh()
			}
			ticker := time.NewTicker(watch)
			defer ticker.Stop()
			for {
				if err := refresh(); err != nil {
					a.logger.Warn("refresh failed", zap.Error(err))
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "Refresh on this interval until interrupted")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import SNAPSHOT_FILE",
		Short: "Load an environment snapshot into the SQLite file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Source.Driver != config.SourceSQLite {
				return fmt.Errorf("import writes to SQLite: pass --db or set source.driver to %q", config.SourceSQLite)
			}
			snap, err := store.LoadSnapshot(args[0])
			if err != nil {
				return err
			}
			d, err := a.open()
			if err != nil {
				return err
			}
			defer d.close()

			stats, err := d.store.Import(cmd.Context(), snap)
			if err != nil {
				return err
			}
			a.logger.Info("snapshot imported",
				zap.String("environment_id", snap.EnvironmentID),
				zap.Int("items", stats.Items),
				zap.Int("variants", stats.Variants))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entities for environment %s into %s\n",
				stats.Total(), snap.EnvironmentID, a.cfg.Source.SQLitePath)
			return nil
		},
	}
}

func (a *app) variantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variant",
		Short: "Create or delete audience variants",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create BASE_ITEM_ID LANGUAGE_ID AUDIENCE_TERM_ID",
			Short: "Create a variant of a base item for one audience",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := a.environmentID()
				if err != nil {
					return err
				}
				d, err := a.open()
				if err != nil {
					return err
				}
				defer d.close()

				ctx := cmd.Context()
				req, err := d.loader.VariantRequest(ctx, env, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				resp, err := d.manager.CreateVariant(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			},
		},
		&cobra.Command{
			Use:   "delete BASE_ITEM_ID LANGUAGE_ID VARIANT_ITEM_ID",
			Short: "Unlink a variant from its base item and delete it",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := a.environmentID()
				if err != nil {
					return err
				}
				d, err := a.open()
				if err != nil {
					return err
				}
				defer d.close()

				ctx := cmd.Context()
				els, err := d.loader.BaseElements(ctx, env, args[0], args[1])
				if err != nil {
					return err
				}
				if err := d.manager.DeleteVariant(ctx, env, args[0], args[1], els.ContentVariants, args[2]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted variant %s\n", args[2])
				return nil
			},
		},
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
