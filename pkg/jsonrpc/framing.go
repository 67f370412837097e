package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds a single newline-delimited frame. A longer frame is
// reported as a FrameTooLarge error; the connection is not closed for it
// (spec.md §4.1, §8: "Frame exactly one byte over the buffer ceiling →
// parse_error, connection survives").
const MaxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by Reader.Next when a line exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds buffer ceiling")

// Reader reads newline-delimited JSON-RPC requests from a stream.
//
// It is built on a plain bufio.Reader rather than bufio.Scanner: Scanner's
// error state is sticky (once Scan reports bufio.ErrTooLong it never reads
// another byte), which would turn one oversized frame into a permanent
// dead connection. Next instead discards bytes up to the next newline and
// keeps going, so a single malformed frame costs one parse_error and the
// connection keeps serving whatever comes after it.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r with a bounded line reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// Next reads the next frame. io.EOF signals a clean close. A frame that
// doesn't fit the buffer surfaces ErrFrameTooLarge; the reader has already
// resynchronized to the byte after that frame's newline, so the following
// call to Next reads the next frame normally.
func (r *Reader) Next() (json.RawMessage, error) {
	var buf []byte
	discarding := false
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(chunk) > 0 && !discarding {
			if len(buf)+len(chunk) > MaxFrameSize {
				discarding = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if discarding {
				return nil, ErrFrameTooLarge
			}
			return trimLine(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			// No newline within this chunk of the internal buffer; the
			// buffer has already been drained into chunk, so looping
			// keeps consuming the stream instead of re-reading it.
			continue
		case errors.Is(err, io.EOF):
			if discarding {
				return nil, ErrFrameTooLarge
			}
			if len(buf) == 0 {
				return nil, io.EOF
			}
			return trimLine(buf), nil
		default:
			return nil, err
		}
	}
}

func trimLine(buf []byte) json.RawMessage {
	line := bytes.TrimRight(buf, "\r\n")
	out := make([]byte, len(line))
	copy(out, line)
	return out
}

// Writer serializes response frames one-per-line under a connection-wide
// lock so concurrent handlers never interleave partial writes
// (spec.md §4.1, §5: "per-connection lock so frames do not interleave").
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w with a serializing lock.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteResponse marshals and writes a single response frame.
func (w *Writer) WriteResponse(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(data)
	return err
}
