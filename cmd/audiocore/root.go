package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/opd-ai/audiocore"
	"github.com/opd-ai/audiocore/config"
	"github.com/opd-ai/audiocore/logging"
	"github.com/opd-ai/audiocore/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiocore",
	Short: "audiocore - low-latency audio transport node",
	Long: `audiocore runs the transport core of a networked music session.

A server binds the well-known UDP port, assigns every audio sender a channel
and answers connectionless control messages. A client binds within a
randomized port window and exchanges control messages with a server.
Control traffic can also travel over TCP or WebSocket when UDP is blocked.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (debug/info/warn/error)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration for the given mode and sets up logging.
// The returned closer flushes the log file.
func loadConfig(mode string) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	cfg.Mode = mode
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

// runUntilSignal starts the node and blocks until SIGINT or SIGTERM.
func runUntilSignal(node *audiocore.Node, work func(ctx context.Context)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}
	defer node.Kill()

	if work != nil {
		go work(ctx)
	}

	<-ctx.Done()

	logrus.WithFields(logrus.Fields{
		"function": "runUntilSignal",
	}).Info("Shutting down")
	return nil
}

// reply answers a control message on the transport it arrived on.
func reply(node *audiocore.Node, ev transport.Event, id transport.MessageID, body []byte) {
	var err error
	if ev.Conn != nil {
		err = ev.Conn.SendControl(id, 0, body)
	} else {
		err = node.SendControl(ev.From, id, 0, body)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "reply",
			"id":       id.String(),
			"to":       ev.From.String(),
			"error":    err.Error(),
		}).Warn("Failed to send reply")
	}
}
