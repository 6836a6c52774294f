package remote

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates the remote instance rejected the connection credentials
var ErrUnauthorized = errors.New("remote instance rejected credentials")

// ErrInvalidTable indicates a table name outside [A-Za-z0-9_]+
var ErrInvalidTable = errors.New("invalid remote table name")

// ErrInvalidRecordID indicates a record id that is not 32 lowercase hex characters
var ErrInvalidRecordID = errors.New("invalid remote record id")

// ErrUnsupportedAuth indicates a connection auth kind the client cannot build a transport for
var ErrUnsupportedAuth = errors.New("unsupported auth kind")

// StatusError represents any other non-2xx response from the remote instance
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote error: HTTP %d: %s", e.StatusCode, e.Body)
}
