// Package audiocore implements the transport and dispatch core of a
// low-latency networked music application.
//
// A single UDP socket carries both audio and control traffic. Every
// received datagram is classified: a structurally valid control envelope is
// decoded and handed to the application as an event, everything else is
// audio and goes straight to the audio sink on the receive goroutine. A
// reliable stream transport (TCP, or TCP tunneled through WebSocket) carries
// the same control frames for clients whose networks block UDP.
//
// # Getting Started
//
// Create a server with a channel table as its audio sink:
//
//	opts := audiocore.NewOptions()
//	opts.StreamEnabled = true
//
//	table := channel.NewTable(10)
//	server, err := audiocore.NewServer(opts, table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Kill()
//
//	server.OnConnectionlessMessage(func(ev transport.Event) {
//	    if ev.ID == transport.MsgCLPing {
//	        server.SendControl(ev.From, transport.MsgCLPing, 0, ev.Body)
//	    }
//	})
//
//	server.OnWakeRequested(func(ev transport.Event) {
//	    table.SetRunning(true)
//	})
//
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// A client is created the same way with NewClient and a
// transport.ClientAudioSink; OnJitterHealth reports once per poll interval
// whether the jitter buffer stayed error free.
//
// # Packages
//
//   - transport: address normalization, frame classification, the datagram
//     and stream transports, the event dispatcher and metrics
//   - channel: the reference server audio sink
//   - config: viper-based configuration loading
//   - logging: logrus setup with rotated file output
//   - limits: wire-format sizes and protocol defaults
package audiocore
