package events

import (
	"errors"
	"fmt"
)

var (
	errMissingData     = errors.New("command data missing")
	errMissingFilename = errors.New("command filename missing")
)

type UnknownCommandError struct {
	Type Type
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command type %q", e.Type)
}
