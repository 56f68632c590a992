// Command ledremote drives a WebSocket LED strip controller: it runs the control agent
// or talks to the strip directly for one-off sends and monitoring.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ledstrip-remote/internal/config"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig   string
	flagEndpoint string
	flagLogLevel string

	logger = logrus.New()
	app    = &cobra.Command{
		Use:           `ledremote`,
		Short:         "remote control for a WebSocket LED strip controller",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(c *cobra.Command, args []string) {
			setLogger()
		},
	}
)

func init() {
	app.PersistentFlags().StringVarP(&flagConfig, `config`, `c`, `config.json`, `path to the JSON config file`)
	app.PersistentFlags().StringVarP(&flagEndpoint, `endpoint`, `e`, ``, `device URI, overrides the config (ws://host:port)`)
	app.PersistentFlags().StringVarP(&flagLogLevel, `log-level`, `L`, `info`, `log level, one of: [debug,info,warn,error]`)

	app.AddCommand(cmdRun)
	app.AddCommand(cmdSend)
	app.AddCommand(cmdEncode)
	app.AddCommand(cmdWatch)
	app.AddCommand(cmdPresets)
}

func main() {
	if err := app.Execute(); err != nil {
		logger.WithField(`error`, err).Errorln(`Command failed`)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagEndpoint != "" {
		cfg.Device.Endpoint = flagEndpoint
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setLogger() {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
