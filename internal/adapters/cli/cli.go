// Package cli is the cobra command tree of the `app` binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/config"
	"invoice-reconciler/internal/logger"

	"github.com/spf13/cobra"
)

// Opener wires the application service from configuration. The returned func
// releases its resources.
type Opener func(ctx context.Context, cfg *config.Config) (app.ApplicationService, func(), error)

// OpenRuntime is the production Opener.
func OpenRuntime(ctx context.Context, cfg *config.Config) (app.ApplicationService, func(), error) {
	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return rt.Service, rt.Close, nil
}

type env struct {
	cfgFile   string
	logLevel  string
	logFormat string

	cfg       *config.Config
	logCloser io.Closer
	open      Opener
}

// NewRootCommand builds the command tree using the given opener.
func NewRootCommand(open Opener) *cobra.Command {
	e := &env{open: open}

	root := &cobra.Command{
		Use:   "app",
		Short: "Match supplier invoices to orders and build AP records",
		Long: `app reconciles supplier invoices received by email against purchase and
consignment orders, splits each invoice total into inventory, freight,
handling and discount charges, and records account-coded AP entries.`,
		SilenceUsage:       true,
		PersistentPreRunE:  e.init,
		PersistentPostRunE: e.close,
	}

	root.PersistentFlags().StringVar(&e.cfgFile, "config", "", "config file (default: ./config.yaml or $HOME/.config/invoice-reconciler/config.yaml)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&e.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(
		matchCmd(e),
		reconcileCmd(e),
		apRecordsCmd(e),
		migrateCmd(e),
		mailAuthCmd(e),
		tokenCmd(e),
	)
	return root
}

// Execute runs the production command tree.
func Execute(ctx context.Context) error {
	return NewRootCommand(OpenRuntime).ExecuteContext(ctx)
}

func (e *env) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(e.cfgFile)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Logging.Level = e.logLevel
	}
	if e.logFormat != "" {
		cfg.Logging.Format = e.logFormat
	}
	// Command output goes to stdout; keep logs out of it.
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	closer, err := logger.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	e.cfg = cfg
	e.logCloser = closer
	return nil
}

func (e *env) close(_ *cobra.Command, _ []string) error {
	if e.logCloser != nil {
		return e.logCloser.Close()
	}
	return nil
}

func (e *env) service(cmd *cobra.Command) (app.ApplicationService, func(), error) {
	svc, closeFn, err := e.open(cmd.Context(), e.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open application: %w", err)
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return svc, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
