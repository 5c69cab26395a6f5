// Package limits provides centralized size constants, socket defaults and
// validation functions for the audio transport protocol. It keeps the
// datagram receive path, the stream framer and the configuration layer in
// agreement about how large a frame may be.
//
// # Size Hierarchy
//
//   - ControlHeaderSize (7 bytes): tag, message id, sequence counter and body
//     length. This is also the fixed header read first on stream connections.
//
//   - ControlOverhead (9 bytes): header plus the trailing CRC. A control frame
//     is never shorter than this.
//
//   - MaxDatagramSize (20000 bytes): the receive buffer for one datagram. Larger
//     datagrams are truncated by the kernel and fail classification.
//
//   - MaxControlFrameSize (65535 bytes): the largest encoded control frame.
//
//   - MaxControlBody (65526 bytes): the largest body that keeps a control frame
//     within MaxControlFrameSize.
//
// # Validation Functions
//
//	err := limits.ValidateDatagramSize(n, cfg.MaxDatagramSize)
//	if err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
//	err = limits.ValidateStreamBodyLength(declared, max)
//
// # Socket Defaults
//
// DefaultPort, DefaultQoS and NumSocketPortsToTry describe the bind strategy
// defaults used when the configuration leaves them unset.
package limits
