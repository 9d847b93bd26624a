package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backoffice/internal/logger"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "backoffice",
	Short: "Back-office API for document references and the cash register",
	Long: `backoffice serves the document issuance API (gap-free yearly
references) and the daily cash register with its ledger.

Configuration is read from the environment, an optional .env file and the
YAML file named by BACKOFFICE_CONFIG.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	log := logger.WithComponent("cmd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
