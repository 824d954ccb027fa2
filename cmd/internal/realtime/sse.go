package realtime

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// maxLineBytes bounds a single event-stream line.
const maxLineBytes = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	// ID is the last event ID seen on the stream, which may come from an earlier event.
	ID string
	// Name is the event type; "message" when the server sent none.
	Name string
	Data string
}

// readEvents parses an event stream and calls fn for every dispatched event.
// It returns io.EOF when the server closes the stream cleanly.
//
// Lines may end in LF, CRLF or a lone CR. Comment lines and the retry field
// are ignored; the caller owns the reconnection policy.
func readEvents(r io.Reader, fn func(Event)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	sc.Split(scanEventLines)

	var (
		lastID  string
		name    string
		data    strings.Builder
		hasData bool
		first   = true
	)

	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}

		if line == "" {
			if hasData {
				if name == "" {
					name = "message"
				}
				fn(Event{ID: lastID, Name: name, Data: data.String()})
			}
			name = ""
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				lastID = value
			}
		}
	}

	if err := sc.Err(); err != nil {
		return err
	}
	// An event without its terminating blank line is discarded.
	return io.EOF
}

// scanEventLines is bufio.ScanLines extended with lone CR terminators.
func scanEventLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// CR: swallow a following LF, but wait for more input if the CR is last.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// isEOF reports a clean end of stream.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
