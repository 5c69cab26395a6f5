package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/opd-ai/audiocore"
	"github.com/opd-ai/audiocore/config"
	"github.com/opd-ai/audiocore/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serverAddress string
	pingInterval  time.Duration
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Ping a server",
	Long: `Bind a client socket and ping a server at a fixed interval, logging the
round trip time of every reply.

Examples:
  audiocore client --server 203.0.113.5:22124
  audiocore client --server jam.example.org:22124 --interval 500ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverAddress == "" {
			return fmt.Errorf("--server is required")
		}

		cfg, closer, err := loadConfig(config.ModeClient)
		if err != nil {
			return err
		}
		defer closer.Close()

		return runClient(cfg)
	},
}

func init() {
	clientCmd.Flags().StringVarP(&serverAddress, "server", "s", "", "server address (host:port)")
	clientCmd.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "ping interval")
}

// discardSink accepts and drops audio frames.
type discardSink struct{}

func (discardSink) PutAudioData(data []byte, from transport.HostAddress) transport.AudioStatus {
	return transport.AudioOK
}

func runClient(cfg *config.Config) error {
	network := "udp4"
	if cfg.Datagram.EnableIPv6 {
		network = "udp"
	}
	server, err := transport.ResolveHostAddress(network, serverAddress)
	if err != nil {
		return err
	}

	node, err := audiocore.NewClient(audiocore.NewOptionsFromConfig(cfg), discardSink{})
	if err != nil {
		return err
	}

	start := time.Now()
	registerClientHandlers(node, start)

	logrus.WithFields(logrus.Fields{
		"function":   "runClient",
		"server":     server.String(),
		"local_addr": node.LocalAddr().String(),
	}).Info("Pinging server")

	return runUntilSignal(node, func(ctx context.Context) {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			if err := node.SendControl(server, transport.MsgCLPing, 0, pingTimestamp(start)); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "runClient",
					"error":    err.Error(),
				}).Warn("Failed to send ping")
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}

func registerClientHandlers(node *audiocore.Node, start time.Time) {
	node.OnConnectionlessMessage(func(ev transport.Event) {
		fields := logrus.Fields{
			"function": "registerClientHandlers",
			"id":       ev.ID.String(),
			"from":     ev.From.String(),
		}

		switch ev.ID {
		case transport.MsgCLPing:
			if len(ev.Body) >= 4 {
				sent := binary.LittleEndian.Uint32(ev.Body)
				now := uint32(time.Since(start).Milliseconds())
				fields["rtt_ms"] = now - sent
			}
			logrus.WithFields(fields).Info("Ping reply")

		case transport.MsgCLServerFull:
			logrus.WithFields(fields).Warn("Server is full")

		default:
			logrus.WithFields(fields).Debug("Connectionless message received")
		}
	})

	node.OnInvalidPacket(func(ev transport.Event) {
		logrus.WithFields(logrus.Fields{
			"function": "registerClientHandlers",
			"from":     ev.From.String(),
		}).Debug("Invalid audio packet")
	})

	node.OnJitterHealth(func(ok bool) {
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "registerClientHandlers",
			}).Warn("Jitter buffer errors since last poll")
		}
	})
}

// pingTimestamp encodes the milliseconds elapsed since start as a ping body.
func pingTimestamp(start time.Time) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(time.Since(start).Milliseconds()))
}
