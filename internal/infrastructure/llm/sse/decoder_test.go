package sse

import (
	"io"
	"strings"
	"testing"
)

const sampleStream = "event: message\n" +
	"data: {\"id\":1,\"text\":\"héllo\"}\n" +
	"\n" +
	": keep-alive comment\n" +
	"data: {\"id\":2,\"text\":\"wörld\"}\r\n" +
	"\r\n" +
	"data: {\"id\":3}\n" +
	"\n" +
	"data: [DONE]\n"

// drain collects all payloads until EOF.
func drain(t *testing.T, d *Decoder) []string {
	t.Helper()
	var out []string
	for {
		raw, err := d.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		out = append(out, string(raw))
	}
}

func TestDecoder_WholeStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(sampleStream))
	got := drain(t, d)

	want := []string{
		`{"id":1,"text":"héllo"}`,
		`{"id":2,"text":"wörld"}`,
		`{"id":3}`,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d payloads, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("payload %d: want %s, got %s", i, want[i], got[i])
		}
	}

	// Terminated streams stay terminated.
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after [DONE], got %v", err)
	}
}

// chunkedReader returns chunks of fixed byte size, splitting lines and
// UTF-8 code points mid-way.
type chunkedReader struct {
	data []byte
	size int
	pos  int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	end := c.pos + c.size
	if end > len(c.data) {
		end = len(c.data)
	}
	n := copy(p, c.data[c.pos:end])
	c.pos += n
	return n, nil
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	ref := drain(t, NewDecoder(strings.NewReader(sampleStream)))

	for size := 1; size <= len(sampleStream); size++ {
		d := NewDecoder(&chunkedReader{data: []byte(sampleStream), size: size})
		got := drain(t, d)
		if len(got) != len(ref) {
			t.Fatalf("chunk size %d: expected %d payloads, got %d", size, len(ref), len(got))
		}
		for i := range ref {
			if got[i] != ref[i] {
				t.Fatalf("chunk size %d payload %d: want %s, got %s", size, i, ref[i], got[i])
			}
		}
	}
}

func TestDecoder_MalformedPayloadIsFatal(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: {not json}\n\n"))
	if _, err := d.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected decode error, got %v", err)
	}
	// The stream is dead afterwards.
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after fatal error, got %v", err)
	}
}

func TestDecoder_TrailingPartialLineDiscarded(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: {\"id\":1}\n\ndata: {\"id\":2"))
	got := drain(t, d)
	if len(got) != 1 || got[0] != `{"id":1}` {
		t.Fatalf("expected only the complete record, got %v", got)
	}
}

func TestDecoder_EndWithoutTerminator(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: {\"id\":7}\n"))
	got := drain(t, d)
	if len(got) != 1 || got[0] != `{"id":7}` {
		t.Fatalf("expected one payload, got %v", got)
	}
}
