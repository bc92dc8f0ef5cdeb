package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// app carries what every verb needs once flags and environment are read
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

func (a *app) runtime() (*host.Runtime, error) {
	return server.NewRuntime(a.cfg, a.metrics, a.logger.Logger)
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		dev      bool
	)
	a := &app{}

	root := &cobra.Command{
		Use:           "webapp",
		Short:         "Build, verify and host local web applications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if dev {
				cfg.Logging.Development = true
			}
			a.cfg = cfg
			a.logger = logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
			a.metrics = monitoring.NewMetrics()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().BoolVar(&dev, "dev", false, "human readable development logging")

	root.AddCommand(
		newInitCmd(a),
		newBuildCmd(a),
		newVersionCmd(a),
		newServeCmd(a),
		newCallCmd(a),
	)
	return root
}
