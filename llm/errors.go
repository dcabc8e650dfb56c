package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrCanceled reports a stream aborted by the caller. It is deliberately
// distinct from transport failures so the UI can stop quietly instead of
// rendering an error.
var ErrCanceled = errors.New("stream canceled")

// APIError is a non-2xx or error-frame response from the remote endpoint,
// carrying both the server-provided message and the raw payload.
type APIError struct {
	StatusCode int
	Message    string
	Raw        []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

// UnknownModelError reports a model id returned by the remote list that has
// no entry in the local metadata table.
type UnknownModelError struct {
	ID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model id %q", e.ID)
}

// IsCanceled reports whether err represents caller-initiated cancellation
// rather than a transport failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
