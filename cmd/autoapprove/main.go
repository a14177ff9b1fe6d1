package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VTimofeenko/connect-autoapprove/internal/config"
	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
	"github.com/VTimofeenko/connect-autoapprove/internal/ledger"
	"github.com/VTimofeenko/connect-autoapprove/internal/logging"
	"github.com/VTimofeenko/connect-autoapprove/internal/params"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	logs   *logging.Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "autoapprove",
	Short: "Auto-approve fulfillment requests on CloudBlue Connect",
	Long: `autoapprove approves purchase, change and cancel requests for your products.

For each pending request it can write a generated license key, fill empty
parameters with synthetic values, then approves the request with the product's
single asset fulfillment template.

Run "autoapprove serve" to receive platform events, or "autoapprove reprocess"
to sweep requests that are still pending.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logs, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		logger = logs.Root()
		logs.Get(logging.CategoryBoot).Debug("config loaded", zap.String("path", configPath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			logs.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "autoapprove.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Timeout for one-shot commands")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(synthCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// commandContext bounds a one-shot command by --timeout and cancels it on
// SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// app holds what the commands share. Parts are opened on demand so that,
// for example, "ledger" works without an API key.
type app struct {
	cfg    *config.Config
	logs   *logging.Logger
	client *connect.Client
	ledger *ledger.Ledger
}

func newApp(c *config.Config, l *logging.Logger) *app {
	return &app{cfg: c, logs: l}
}

func (a *app) platform() (*connect.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := connect.New(connect.Config{
		BaseURL: a.cfg.Connect.BaseURL,
		APIKey:  a.cfg.Connect.APIKey,
		Timeout: a.cfg.GetConnectTimeout(),
		Logger:  a.logs.Get(logging.CategoryAPI),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}
	a.client = client
	return client, nil
}

// openLedger returns nil when the ledger is disabled.
func (a *app) openLedger() (*ledger.Ledger, error) {
	if a.ledger != nil || !a.cfg.Ledger.Enabled {
		return a.ledger, nil
	}
	l, err := ledger.Open(a.cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	a.logs.Get(logging.CategoryLedger).Debug("ledger opened", zap.String("path", l.Path()))
	a.ledger = l
	return l, nil
}

func (a *app) newExtension(settings extension.Settings) (*extension.Extension, error) {
	client, err := a.platform()
	if err != nil {
		return nil, err
	}
	l, err := a.openLedger()
	if err != nil {
		return nil, err
	}

	opts := []extension.Option{
		extension.WithLogger(a.logs),
		extension.WithSynthesizer(params.New(a.cfg.Extension.Seed)),
	}
	if l != nil {
		opts = append(opts, extension.WithRecorder(l))
	}
	return extension.New(client, settings, opts...), nil
}

func (a *app) Close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logs.Get(logging.CategoryLedger).Warn("failed to close ledger", zap.Error(err))
		}
		a.ledger = nil
	}
}
