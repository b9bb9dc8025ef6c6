// Package commands implements the payoutctl operator CLI.
package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/config"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type rootOptions struct {
	envFile  string
	apiURL   string
	logLevel string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var opts rootOptions
	var a *app

	rootCmd := &cobra.Command{
		Use:     "payoutctl",
		Short:   "Inspect and schedule marketplace seller payouts",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return fmt.Errorf("loading %s: %w", opts.envFile, err)
			}
			cfg := config.Load()
			if opts.apiURL != "" {
				cfg.PaymentAPIURL = opts.apiURL
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}

			var err error
			a, err = newApp(cmd.Context(), cfg, observability.NewLogger(cfg.LogLevel))
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "payout API base URL (overrides PAYMENT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	current := func() *app { return a }
	rootCmd.AddCommand(
		newPendingCommand(current),
		newStatsCommand(current),
		newScheduleCommand(current),
		newPayNowCommand(current),
	)

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logCommand(a *app, name string, fields ...zap.Field) {
	a.logger.Debug("running command", append([]zap.Field{zap.String("command", name)}, fields...)...)
}
