package cmd

import (
	"fmt"
	"os"

	"epserver/config"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "epserver",
		Short:         "Engineering sheet document store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newInitializeCmd())
	return root
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrap(err, "LOG_LEVEL")
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
