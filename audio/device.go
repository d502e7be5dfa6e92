package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrPickerAborted is returned when the user presses Ctrl+C in the picker.
var ErrPickerAborted = errors.New("device selection aborted")

type pickerKey int

const (
	keyNone pickerKey = iota
	keyUp
	keyDown
	keyEnter
	keyAbort
)

func decodeKey(buf []byte) pickerKey {
	switch {
	case len(buf) == 1 && buf[0] == '\r', len(buf) == 1 && buf[0] == '\n':
		return keyEnter
	case len(buf) == 1 && buf[0] == 3:
		return keyAbort
	case len(buf) == 1 && buf[0] == 'k':
		return keyUp
	case len(buf) == 1 && buf[0] == 'j':
		return keyDown
	case len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
		return keyUp
	case len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
		return keyDown
	}
	return keyNone
}

func moveCursor(cursor, n int, k pickerKey) int {
	switch k {
	case keyUp:
		return max(cursor-1, 0)
	case keyDown:
		return min(cursor+1, n-1)
	}
	return cursor
}

func renderPicker(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s\x1b[0m\r\n", d.Name)
		} else {
			fmt.Fprintf(w, "    %s\r\n", d.Name)
		}
	}
}

// pick runs the picker loop over an already-raw input stream.
func pick(in io.Reader, out io.Writer, devices []DeviceInfo) (*DeviceInfo, error) {
	cursor := 0
	renderPicker(out, devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch k := decodeKey(buf[:n]); k {
		case keyEnter:
			fmt.Fprint(out, "\r\n")
			return &devices[cursor], nil
		case keyAbort:
			fmt.Fprint(out, "\r\n")
			return nil, ErrPickerAborted
		default:
			cursor = moveCursor(cursor, len(devices), k)
		}
		fmt.Fprintf(out, "\x1b[%dA", len(devices)+2)
		renderPicker(out, devices, cursor)
	}
}

// SelectDevice presents an interactive device picker on the terminal.
// With a single device it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("%w: no capture devices found", ErrPermissionDenied)
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	return pick(os.Stdin, os.Stdout, devices)
}
