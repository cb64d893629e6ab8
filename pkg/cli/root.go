// Package cli implements the opsgate command-line interface. Commands operate
// directly on the local metadata store; there is no API server in between.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"opsgate/internal/app"
	"opsgate/internal/config"
	"opsgate/internal/db"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, map[string]interface{}{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		output  string
	)

	rootCmd := &cobra.Command{
		Use:           "opsgate",
		Short:         "Database operation approval service CLI",
		Long:          "Submit, approve, reject, and inspect database operation requests.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			return config.LoadDotEnv(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newPodCmd())
	rootCmd.AddCommand(newInstanceCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newApproveCmd())
	rootCmd.AddCommand(newRejectCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// bootstrap loads config, opens the metadata store, runs migrations, and wires
// the application. The returned cleanup closes the store.
func bootstrap() (*app.App, func(), error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	store, err := db.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}
	if err := db.RunMigrations(store); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	a, err := app.New(app.Deps{Cfg: cfg, Store: store, Logger: logger})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return a, func() { _ = store.Close() }, nil
}
