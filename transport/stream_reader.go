package transport

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/opd-ai/audiocore/limits"
)

// Stream read stages.
const (
	StageAwaitingHeader = "awaiting_header"
	StageAwaitingBody   = "awaiting_body"
	StageClosed         = "closed"
)

const (
	eventHeaderComplete = "header_complete"
	eventBodyComplete   = "body_complete"
	eventFail           = "fail"
)

// DefaultMaxStreamFrameSize bounds a frame reconstructed from a stream.
const DefaultMaxStreamFrameSize = limits.MaxControlFrameSize

// FrameReader reconstructs control frames from a byte stream that delivers
// them in arbitrary fragments. It alternates between reading the fixed header
// and reading the body the header declared, and only ever asks for the bytes
// still missing from the current stage, so a fragment can never spill into
// the next frame.
//
// A FrameReader is owned by one connection and is not safe for concurrent use.
type FrameReader struct {
	stage        *fsm.FSM
	buf          []byte
	filled       int
	need         int
	maxFrameSize int
}

// NewFrameReader creates a reader awaiting a header. A non-positive
// maxFrameSize selects DefaultMaxStreamFrameSize.
func NewFrameReader(maxFrameSize int) *FrameReader {
	maxFrameSize = effectiveMaxFrameSize(maxFrameSize)

	return &FrameReader{
		stage: fsm.NewFSM(
			StageAwaitingHeader,
			fsm.Events{
				{Name: eventHeaderComplete, Src: []string{StageAwaitingHeader}, Dst: StageAwaitingBody},
				{Name: eventBodyComplete, Src: []string{StageAwaitingBody}, Dst: StageAwaitingHeader},
				{Name: eventFail, Src: []string{StageAwaitingHeader, StageAwaitingBody}, Dst: StageClosed},
			},
			fsm.Callbacks{},
		),
		buf:          make([]byte, limits.ControlHeaderSize),
		need:         limits.ControlHeaderSize,
		maxFrameSize: maxFrameSize,
	}
}

// effectiveMaxFrameSize maps a configured frame limit onto the range the
// 16-bit length field can express.
func effectiveMaxFrameSize(n int) int {
	if n <= 0 || n > DefaultMaxStreamFrameSize {
		return DefaultMaxStreamFrameSize
	}
	return n
}

// Stage returns the current read stage.
func (r *FrameReader) Stage() string {
	return r.stage.Current()
}

// Pending reports whether part of a frame has been read.
func (r *FrameReader) Pending() bool {
	return r.filled > 0 || r.stage.Is(StageAwaitingBody)
}

// Next returns the buffer to read into. Its length is exactly the number of
// bytes still missing from the current stage. It is empty once the reader
// is closed.
func (r *FrameReader) Next() []byte {
	if r.stage.Is(StageClosed) {
		return nil
	}
	return r.buf[r.filled:r.need]
}

// Advance records that n bytes were written into the slice returned by Next.
// When this completes a frame, the header and body are returned; the slice is
// only valid until the next call to Next. A header declaring a body beyond
// the maximum frame size closes the reader and returns ErrFrameTooLarge.
func (r *FrameReader) Advance(n int) ([]byte, error) {
	if r.stage.Is(StageClosed) {
		return nil, ErrTransportClosed
	}
	if n < 0 || r.filled+n > r.need {
		r.fail()
		return nil, fmt.Errorf("%w: advanced %d bytes with %d missing", ErrFramingViolation, n, r.need-r.filled)
	}

	r.filled += n
	if r.filled < r.need {
		return nil, nil
	}

	if r.stage.Is(StageAwaitingHeader) {
		return nil, r.completeHeader()
	}

	frame := r.buf[:r.need]
	r.filled = 0
	r.need = limits.ControlHeaderSize
	_ = r.stage.Event(context.Background(), eventBodyComplete)
	return frame, nil
}

// completeHeader trusts the declared length only now that the header is
// fully assembled, and sizes the buffer for the body.
func (r *FrameReader) completeHeader() error {
	bodyLen := streamBodyLength(r.buf[:limits.ControlHeaderSize])
	if err := limits.ValidateStreamBodyLength(bodyLen, r.maxFrameSize); err != nil {
		r.fail()
		return fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}

	total := limits.ControlHeaderSize + bodyLen
	if cap(r.buf) < total {
		grown := make([]byte, total)
		copy(grown, r.buf[:limits.ControlHeaderSize])
		r.buf = grown
	}
	r.buf = r.buf[:total]
	r.need = total

	return r.stage.Event(context.Background(), eventHeaderComplete)
}

// Feed runs p through the reader, calling emit for every frame it completes.
// It is used by transports that receive data in messages rather than through
// an io.Reader. Processing stops at the first error from the reader or emit.
func (r *FrameReader) Feed(p []byte, emit func(frame []byte) error) error {
	for len(p) > 0 {
		dst := r.Next()
		if len(dst) == 0 {
			return ErrTransportClosed
		}

		n := copy(dst, p)
		p = p[n:]

		frame, err := r.Advance(n)
		if err != nil {
			return err
		}
		if frame == nil {
			continue
		}
		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}

// Close moves the reader to the closed stage and releases its buffer.
func (r *FrameReader) Close() {
	r.fail()
}

func (r *FrameReader) fail() {
	if !r.stage.Is(StageClosed) {
		_ = r.stage.Event(context.Background(), eventFail)
	}
	r.buf = nil
	r.filled = 0
	r.need = 0
}
