package bridge

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event. Type is empty for the default
// "message" type.
type sseEvent struct {
	Type string
	Data string
}

// sseScanner splits an event stream into events. Comment lines and fields
// other than data and event are ignored.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 32*1024)}
}

// Next advances to the next event, returning false at end of stream or on a
// read error. An event not terminated by a blank line before EOF is
// discarded.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = sseEvent{}

	var data []string
	var eventType string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			return false
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if data != nil {
				s.current = sseEvent{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			eventType = value
		}
	}
}

func (s *sseScanner) Event() sseEvent { return s.current }

// Err returns the read error that stopped the scanner, or nil on clean EOF.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
