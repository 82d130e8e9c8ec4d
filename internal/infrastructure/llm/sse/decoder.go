// Package sse decodes text/event-stream bodies into discrete JSON
// payloads. Only `data: ` lines carry payload; the literal `[DONE]`
// payload terminates the stream.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// Decoder yields the JSON payloads of an SSE byte stream. Bytes that
// straddle read boundaries are buffered internally, so feeding the same
// stream in arbitrarily small chunks yields the same sequence.
type Decoder struct {
	r    *bufio.Reader
	done bool
}

// NewDecoder wraps r. The reader is consumed line by line; comment and
// event-name lines are ignored.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next JSON payload. It returns io.EOF when the stream
// terminates, either via the `[DONE]` sentinel or at end of input.
// Incomplete trailing bytes with no line terminator are discarded.
// A malformed JSON payload is fatal for the stream.
func (d *Decoder) Next() (json.RawMessage, error) {
	if d.done {
		return nil, io.EOF
	}

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			// A partial line at EOF never forms a complete record.
			d.done = true
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read sse stream: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, dataPrefix)
		if data == doneMarker {
			d.done = true
			return nil, io.EOF
		}

		raw := json.RawMessage(data)
		if !json.Valid(raw) {
			d.done = true
			return nil, fmt.Errorf("malformed sse payload: %q", truncate(data, 200))
		}
		return raw, nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
