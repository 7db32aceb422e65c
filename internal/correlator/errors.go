package correlator

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout        = errors.New("correlator: request timed out")
	ErrShuttingDown   = errors.New("correlator: shutting down")
	ErrDuplicateToken = errors.New("correlator: duplicate request token")
	ErrNilRequest     = errors.New("correlator: nil request")
)

// RemoteError is a failure reported by the host on a reply with success=false.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("correlator: %s failed remotely", e.Command)
	}
	return fmt.Sprintf("correlator: %s failed remotely: %s", e.Command, e.Message)
}
