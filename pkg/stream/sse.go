package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// defaultEventName is the SSE event name used when no "event:" field is sent
const defaultEventName = "message"

// maxEventSize bounds a single SSE line. Delivered payloads carry the
// result image inline as a data URI, so lines run well past the bufio
// default of 64KB.
const maxEventSize = 8 * 1024 * 1024

// sseEvent is one parsed server-sent event
type sseEvent struct {
	name string
	data string
}

// sseScanner scans a server-sent-event stream, honouring "event:" names
// and joining multi-line "data:" fields
type sseScanner struct {
	scanner *bufio.Scanner
	event   sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseScanner{scanner: scanner}
}

// Scan advances to the next event carrying data. Comment lines and
// unknown fields are skipped. Returns false at end of stream.
func (s *sseScanner) Scan() bool {
	name := defaultEventName
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		// Blank line terminates an event block
		if len(line) == 0 {
			if len(data) > 0 {
				s.event = sseEvent{name: name, data: strings.Join(data, "\n")}
				return true
			}
			name = defaultEventName
			continue
		}

		// Comment line
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}

	s.err = s.scanner.Err()
	if len(data) > 0 {
		// Stream ended without a trailing blank line
		s.event = sseEvent{name: name, data: strings.Join(data, "\n")}
		return true
	}
	return false
}

// Event returns the current event
func (s *sseScanner) Event() sseEvent {
	return s.event
}

// Err returns any scanning error
func (s *sseScanner) Err() error {
	return s.err
}

// splitField splits "field: value", trimming the single optional space
// after the colon
func splitField(line []byte) (string, string) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), ""
	}
	value := line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:idx]), string(value)
}
