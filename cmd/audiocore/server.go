package main

import (
	"context"
	"time"

	"github.com/opd-ai/audiocore"
	"github.com/opd-ai/audiocore/channel"
	"github.com/opd-ai/audiocore/config"
	"github.com/opd-ai/audiocore/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var idleTimeout time.Duration

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a server",
	Long: `Run a server bound to datagram.port.

Examples:
  audiocore server                          # Defaults: UDP 22124, no stream transport
  audiocore server -c config.yaml           # Settings from config.yaml
  audiocore server --idle-timeout 1m        # Free channels silent for a minute`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(config.ModeServer)
		if err != nil {
			return err
		}
		defer closer.Close()

		return runServer(cfg)
	},
}

func init() {
	serverCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 30*time.Second,
		"free a channel after this long without audio")
}

func runServer(cfg *config.Config) error {
	table := channel.NewTable(cfg.Server.MaxClients)

	node, err := audiocore.NewServer(audiocore.NewOptionsFromConfig(cfg), table)
	if err != nil {
		return err
	}

	registerServerHandlers(node, table)

	return runUntilSignal(node, func(ctx context.Context) {
		expireIdleChannels(ctx, table, idleTimeout)
	})
}

func registerServerHandlers(node *audiocore.Node, table *channel.Table) {
	node.OnConnectionlessMessage(func(ev transport.Event) {
		switch ev.ID {
		case transport.MsgCLPing:
			reply(node, ev, transport.MsgCLPing, ev.Body)

		case transport.MsgCLPingWithClientCount:
			body := append([]byte(nil), ev.Body...)
			body = append(body, byte(table.ConnectedClientCount()))
			reply(node, ev, transport.MsgCLPingWithClientCount, body)

		case transport.MsgCLRequestVersionAndOS:
			reply(node, ev, transport.MsgCLVersionAndOS, versionAndOS())

		case transport.MsgCLDisconnection:
			if table.Release(ev.From) {
				logrus.WithFields(logrus.Fields{
					"function": "registerServerHandlers",
					"from":     ev.From.String(),
				}).Info("Client disconnected")
			}

		default:
			logrus.WithFields(logrus.Fields{
				"function": "registerServerHandlers",
				"id":       ev.ID.String(),
				"from":     ev.From.String(),
			}).Debug("Ignoring connectionless message")
		}
	})

	node.OnSessionMessage(func(ev transport.Event) {
		logrus.WithFields(logrus.Fields{
			"function": "registerServerHandlers",
			"id":       ev.ID.String(),
			"sequence": ev.Sequence,
			"from":     ev.From.String(),
		}).Debug("Session message received")
	})

	node.OnNewConnection(func(ev transport.Event) {
		logrus.WithFields(logrus.Fields{
			"function":   "registerServerHandlers",
			"from":       ev.From.String(),
			"channel_id": ev.ChannelID,
			"clients":    ev.ClientCount,
		}).Info("Client connected")
	})

	node.OnWakeRequested(func(ev transport.Event) {
		table.SetRunning(true)
		logrus.WithFields(logrus.Fields{
			"function": "registerServerHandlers",
			"from":     ev.From.String(),
		}).Info("Server processing started")
	})

	node.OnCapacityExceeded(func(ev transport.Event) {
		logrus.WithFields(logrus.Fields{
			"function": "registerServerHandlers",
			"from":     ev.From.String(),
		}).Warn("Server full, rejecting client")
		reply(node, ev, transport.MsgCLServerFull, nil)
	})
}

// expireIdleChannels frees silent channels and stops processing once the
// table is empty.
func expireIdleChannels(ctx context.Context, table *channel.Table, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ch := range table.ExpireIdle(timeout) {
				logrus.WithFields(logrus.Fields{
					"function":   "expireIdleChannels",
					"from":       ch.Addr.String(),
					"channel_id": ch.ID,
					"frames":     ch.Frames,
				}).Info("Client timed out")
			}
			if table.ConnectedClientCount() == 0 && table.IsRunning() {
				table.SetRunning(false)
			}
		}
	}
}
