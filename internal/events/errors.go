package events

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTopic     = errors.New("unknown topic")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrArity            = errors.New("unexpected argument count")
	ErrArgumentType     = errors.New("unexpected argument type")
)

// DecodeError reports an event that could not be decoded. It is never
// fatal; callers log it and drop the event.
type DecodeError struct {
	Topic  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("decode %q: %v", e.Topic, e.Err)
	}
	return fmt.Sprintf("decode %q: %v: %s", e.Topic, e.Err, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
