package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ledstrip-remote/internal/agent"
)

var cmdRun = &cobra.Command{
	Use:   `run`,
	Short: "run the agent with the web UI, MQTT bridge and scheduler",
	Args:  cobra.NoArgs,
	RunE:  runAgent,
}

func runAgent(c *cobra.Command, args []string) error {
	logger.Infof("Starting ledstrip-remote version: %s, commit: %s, built: %s", version, commit, date)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := agent.NewAgent(cfg, logger)
	if err != nil {
		return err
	}

	go a.Run()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down agent...")
	a.Shutdown()
	logger.Info("Agent shut down gracefully.")
	return nil
}
