package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/audiocore/limits"
)

// FrameKind tags a classified wire frame.
type FrameKind uint8

const (
	// FrameAudio carries raw audio payload forwarded verbatim to the audio sink.
	FrameAudio FrameKind = iota
	// FrameControl carries a protocol message with an id and sequence counter.
	FrameControl
)

// String returns a human-readable representation of the FrameKind.
func (k FrameKind) String() string {
	switch k {
	case FrameAudio:
		return "audio"
	case FrameControl:
		return "control"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// ControlFrame is the decoded control envelope.
//
// Sequence is only set for connection-oriented messages, where it is used
// upstream for ordering and acknowledgement tracking. It is zero otherwise.
type ControlFrame struct {
	Sequence uint32
	ID       MessageID
	Body     []byte
}

// Category returns the partition of the frame's message id.
func (c ControlFrame) Category() Category {
	return c.ID.Category()
}

// Frame is the result of classifying raw bytes.
//
// Body and Raw alias the classified input; a caller that hands the frame to
// another goroutine must copy them first.
type Frame struct {
	Kind    FrameKind
	Control ControlFrame
	Raw     []byte
}

// Classify splits raw bytes into an audio frame or a control frame. It is
// total and deterministic: input that is a structurally valid control
// envelope is FrameControl, everything else (including empty input) is
// FrameAudio. Audio is the expected case and is decided by the first failed
// check, usually the length comparison.
func Classify(data []byte) Frame {
	if cf, ok := ParseControlFrame(data); ok {
		return Frame{Kind: FrameControl, Control: cf, Raw: data}
	}
	return Frame{Kind: FrameAudio, Raw: data}
}

// ParseControlFrame validates the control envelope. ok is true only when the
// tag is zero, the declared body length matches the input length exactly and
// the CRC matches. The returned Body aliases data.
func ParseControlFrame(data []byte) (ControlFrame, bool) {
	if len(data) < limits.ControlOverhead {
		return ControlFrame{}, false
	}

	if data[0] != 0 || data[1] != 0 {
		return ControlFrame{}, false
	}

	bodyLen := int(binary.LittleEndian.Uint16(data[5:7]))
	if bodyLen != len(data)-limits.ControlOverhead {
		return ControlFrame{}, false
	}

	crcPos := limits.ControlHeaderSize + bodyLen
	if crc16(data[:crcPos]) != binary.LittleEndian.Uint16(data[crcPos:]) {
		return ControlFrame{}, false
	}

	cf := ControlFrame{
		ID:   MessageID(binary.LittleEndian.Uint16(data[2:4])),
		Body: data[limits.ControlHeaderSize:crcPos],
	}
	if cf.ID.Category() == ConnectionOriented {
		cf.Sequence = uint32(data[4])
	}
	return cf, true
}

// streamBodyLength returns the number of bytes following a stream header:
// the declared body length plus the trailing CRC.
func streamBodyLength(header []byte) int {
	return int(binary.LittleEndian.Uint16(header[5:7])) + limits.ControlCRCSize
}

// EncodeControlFrame serializes a control message. The sequence counter is
// one byte on the wire.
func EncodeControlFrame(id MessageID, sequence uint8, body []byte) ([]byte, error) {
	return AppendControlFrame(make([]byte, 0, limits.ControlOverhead+len(body)), id, sequence, body)
}

// AppendControlFrame appends the serialized control message to dst.
func AppendControlFrame(dst []byte, id MessageID, sequence uint8, body []byte) ([]byte, error) {
	if len(body) > limits.MaxControlBody {
		return nil, fmt.Errorf("%w: body size %d exceeds limit %d",
			limits.ErrMessageTooLarge, len(body), limits.MaxControlBody)
	}

	start := len(dst)
	dst = append(dst, 0, 0)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(id))
	dst = append(dst, sequence)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(body)))
	dst = append(dst, body...)
	dst = binary.LittleEndian.AppendUint16(dst, crc16(dst[start:]))
	return dst, nil
}
