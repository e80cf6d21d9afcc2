package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "keydeskctl",
		Short:         "Command-line client for the keydesk license key service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a config.yaml (default: <state dir>/config.yaml)")

	cmd.AddCommand(newLoginCommand(&cfgPath))
	cmd.AddCommand(newRegisterCommand(&cfgPath))
	cmd.AddCommand(newLogoutCommand(&cfgPath))
	cmd.AddCommand(newStatusCommand(&cfgPath))
	cmd.AddCommand(newDashboardCommand(&cfgPath))
	cmd.AddCommand(newKeysCommand(&cfgPath))
	cmd.AddCommand(newSettingsCommand(&cfgPath))
	return cmd
}
