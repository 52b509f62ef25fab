package stepwire

import (
	"bytes"

	"github.com/go-json-experiment/json"
)

// Wire framing: each event is a "data: " line carrying a JSON payload,
// terminated by a blank line.
const (
	frameDataPrefix = "data: "
	frameTerminator = "\n\n"
)

// EncodeFrame encodes a single event as a self-terminating text frame.
func EncodeFrame(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(frameDataPrefix)+len(payload)+len(frameTerminator))
	buf = append(buf, frameDataPrefix...)
	buf = append(buf, payload...)
	buf = append(buf, frameTerminator...)
	return buf, nil
}

// DecodeFrame attempts to extract one complete frame from the front of buf.
// It returns the decoded event and the number of bytes consumed; the caller
// retains buf[consumed:] for the next read.
//
// Decoding is best-effort and resynchronizing: a complete frame whose
// payload is malformed, or a comment frame, is consumed with a nil event.
// No complete terminator means nothing is consumed. DecodeFrame never
// returns an error; the stream recovers at the next terminator.
func DecodeFrame(buf []byte) (*Event, int) {
	idx := bytes.Index(buf, []byte(frameTerminator))
	if idx < 0 {
		return nil, 0
	}
	consumed := idx + len(frameTerminator)

	// A frame may carry several fields (event:, id:, comments); only the
	// data field holds the payload.
	for _, line := range bytes.Split(buf[:idx], []byte("\n")) {
		if !bytes.HasPrefix(line, []byte(frameDataPrefix)) {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line[len(frameDataPrefix):], &ev); err != nil {
			return nil, consumed
		}
		if ev.Type == "" {
			return nil, consumed
		}
		return &ev, consumed
	}
	return nil, consumed
}
