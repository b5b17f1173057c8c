package messages

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when an inbound payload is malformed or fails validation.
type ErrInvalidPayload struct {
	Type   string
	Reason string
}

func (e *ErrInvalidPayload) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Type, e.Reason)
}

func IsInvalidPayload(err error) bool {
	var target *ErrInvalidPayload
	return errors.As(err, &target)
}
