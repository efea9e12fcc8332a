package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Nickm615/personalization-custom-app-example/pkg/config"
)

// app carries the state shared by all commands.
type app struct {
	configPath string
	dbPath     string
	envID      string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "personalization",
		Short: "Resolve and manage audience variants of Kontent.ai content items",
		Long: `personalization shows which audience variants are linked from a content
item and creates or removes them.

Entities are read from the Kontent.ai Management API, or from a local SQLite
file filled with "personalization import" when --db is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "personalization.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Read from this SQLite file instead of the Management API")
	root.PersistentFlags().StringVar(&a.envID, "env", "", "Environment id (defaults to kontent.environment_id)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.serveCmd(),
		a.showCmd(),
		a.importCmd(),
		a.variantCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Source.Driver = config.SourceSQLite
		cfg.Source.SQLitePath = a.dbPath
	}
	if a.envID != "" {
		cfg.Kontent.EnvironmentID = a.envID
	}
	a.cfg = cfg

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.ZapLevel())
	if a.verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !cfg.Logging.JSON {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	a.logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func (a *app) environmentID() (string, error) {
	if a.cfg.Kontent.EnvironmentID == "" {
		return "", fmt.Errorf("no environment id: pass --env or set KONTENT_ENVIRONMENT_ID")
	}
	return a.cfg.Kontent.EnvironmentID, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
