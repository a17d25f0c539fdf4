package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aitoolhub/accountsec/internal/config"
	"github.com/aitoolhub/accountsec/pkg/logger"
	"github.com/aitoolhub/accountsec/pkg/requestid"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:   "accountsec",
		Short: "Two-factor enrollment and login challenges",
		Long: `accountsec adds a second factor to an existing password login.

Users enroll an authenticator app (TOTP) or an email address, receive
single-use recovery codes, and answer a challenge on every sign-in.
Configuration comes from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if len(envFiles) > 0 {
				return config.LoadEnv(envFiles...)
			}
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSweepCmd(),
		newKeygenCmd(),
	)
	return root
}

func newLogger(app config.App) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(app.Environment, app.ServiceName),
		logger.WithLevel(logger.ParseLevel(app.LogLevel)),
		logger.WithOutput(os.Stderr),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
}
