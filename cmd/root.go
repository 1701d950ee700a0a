// Package cmd holds the CLI entry points.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/homefixr/dispatch/app"
	"github.com/homefixr/dispatch/config"
	"github.com/homefixr/dispatch/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "homefix-dispatch",
	Short:         "Booking dispatch engine for the HomeFix marketplace",
	Long:          "Runs the booking assignment engine: candidate selection, offer coordination, job lifecycle and the HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("assemble service: %w", err)
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.New("main").Errorf("service close: %v", cerr)
		}
	}()

	return svc.Run(ctx)
}
