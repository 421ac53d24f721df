package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"veil/internal/domain"
)

// MaxFrameBytes bounds a single frame on the wire. Larger frames are
// rejected rather than buffered without limit.
const MaxFrameBytes = 1 << 20

// FrameReader reads newline-delimited JSON frames from a stream. TCP
// gives no message boundaries, so a delimiter is required: one read may
// carry a partial frame or several frames, and the buffered line scan
// reassembles them.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r for frame reading.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadFrame blocks for the next frame. It returns io.EOF on a cleanly
// closed stream and domain.ErrProtocolVersion on a frame with the wrong
// protocol tag.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	line, err := fr.readLine()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if f.Protocol != Version {
		return Frame{}, fmt.Errorf("%w: got %q, want %q", domain.ErrProtocolVersion, f.Protocol, Version)
	}
	return f, nil
}

func (fr *FrameReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := fr.r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxFrameBytes {
			return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameBytes)
		}
		if !isPrefix {
			break
		}
	}
	if len(line) == 0 {
		// Tolerate blank keep-alive lines.
		return fr.readLine()
	}
	return line, nil
}

// WriteFrame serializes f followed by the frame delimiter. JSON string
// escaping guarantees the body itself contains no raw newline.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
