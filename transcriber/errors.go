package transcriber

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *TransportError through errors.Is.
	ErrTransport = errors.New("transport error")

	// ErrNoTranscript means the backend answered but had no text to give.
	ErrNoTranscript = errors.New("no transcript available")
)

// TransportError is a network failure or a non-2xx response.
type TransportError struct {
	Op     string
	Status int // zero when no response arrived
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
