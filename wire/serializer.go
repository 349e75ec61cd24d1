package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds the payload of one frame.
const MaxFrameSize = 64 << 20

// flushThreshold is the buffered size at which SerializeCommand flushes on
// its own.
const flushThreshold = 1 << 20

// Serializer accepts commands and sends them in frames.
type Serializer interface {
	// SerializeCommand queues cmd for the next frame.
	SerializeCommand(cmd Command)
	// Flush sends the queued commands as one frame.
	Flush() error
}

// BufferedSerializer frames commands onto an io.Writer. A write error
// sticks and is returned by every later Flush.
//
// Thread safety: BufferedSerializer is safe for concurrent use.
type BufferedSerializer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	err error
}

// NewBufferedSerializer creates a serializer writing frames to w.
func NewBufferedSerializer(w io.Writer) *BufferedSerializer {
	return &BufferedSerializer{w: w, buf: make([]byte, 4, 4096)}
}

// SerializeCommand implements Serializer.
func (s *BufferedSerializer) SerializeCommand(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = AppendCommand(s.buf, cmd)
	if len(s.buf) >= flushThreshold {
		s.flushLocked()
	}
}

// Flush implements Serializer. Flushing with nothing queued writes nothing.
func (s *BufferedSerializer) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return s.err
}

// Pending returns the number of payload bytes waiting for Flush.
func (s *BufferedSerializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) - 4
}

func (s *BufferedSerializer) flushLocked() {
	n := len(s.buf) - 4
	if n == 0 || s.err != nil {
		s.buf = s.buf[:4]
		return
	}
	binary.LittleEndian.PutUint32(s.buf, uint32(n))
	if _, err := s.w.Write(s.buf); err != nil {
		s.err = fmt.Errorf("wire: write frame: %w", err)
	}
	s.buf = s.buf[:4]
}

// ReadFrame reads one frame from r and returns its payload. It returns
// io.EOF only when r ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, ProtocolError("frame of %d bytes exceeds %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("wire: read frame: %w", err)
	}
	return payload, nil
}
