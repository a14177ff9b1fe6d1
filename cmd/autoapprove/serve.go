package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VTimofeenko/connect-autoapprove/internal/config"
	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
	"github.com/VTimofeenko/connect-autoapprove/internal/logging"
	"github.com/VTimofeenko/connect-autoapprove/internal/server"
)

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for platform events and approve requests as they arrive",
	Long: `Starts the HTTP event listener:

  POST /v1/events   {"event_type": "...", "request": {...}}
  GET  /healthz

The config file is watched; extension settings and log categories are
reloaded without a restart. Listener settings need a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the config file on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logs)
	defer a.Close()

	ext, err := a.newExtension(extension.SettingsFromConfig(cfg.Extension))
	if err != nil {
		return err
	}

	if !serveNoWatch {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			ext.UpdateSettings(extension.SettingsFromConfig(next.Extension))
			logs.SetCategories(next.Logging.Categories)
			logs.Get(logging.CategoryConfig).Info("settings reloaded",
				zap.Bool("assign_license", next.Extension.AssignLicense),
				zap.Bool("synthesize_parameters", next.Extension.SynthesizeParameters),
				zap.Bool("approve_cancellations", next.Extension.ApproveCancellations),
				zap.Bool("dry_run", next.Extension.DryRun))
		}, logs.Get(logging.CategoryConfig))
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			logs.Get(logging.CategoryConfig).Warn("config reload disabled", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	srv := server.New(server.Settings{
		Listen:          cfg.Server.Listen,
		Token:           cfg.Server.Token,
		ShutdownTimeout: cfg.GetShutdownTimeout(),
	}, ext, server.WithLogger(logs.Get(logging.CategoryServer)))

	logger.Info("autoapprove serving",
		zap.String("listen", cfg.Server.Listen),
		zap.Bool("ledger", cfg.Ledger.Enabled),
		zap.Bool("dry_run", cfg.Extension.DryRun))
	return srv.Run(ctx)
}
