package connection

import "fmt"

// ReconnectExhaustedError reports that the bounded reconnect budget was
// spent without re-establishing the connection.
type ReconnectExhaustedError struct {
	Attempts    int
	MaxAttempts int
	LastErr     error
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("reconnect exhausted (%d/%d attempts): %v",
		e.Attempts, e.MaxAttempts, e.LastErr)
}

func (e *ReconnectExhaustedError) Unwrap() error {
	return e.LastErr
}
