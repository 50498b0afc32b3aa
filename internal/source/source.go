// Package source defines supplementary inbound sources that feed the
// notification dispatcher alongside the realtime connection.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/frontdesk-notify/internal/notify"
)

// AuthError indicates that authentication has failed or expired for a source.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// SourceType identifies the kind of inbound source.
type SourceType string

const (
	SourceTypeEmail SourceType = "email"
)

// FetchResult holds the events found since a cursor and the cursor to
// resume from next time.
type FetchResult struct {
	Events []notify.RawEvent
	Cursor string
}

// Source yields inbound events that arrived after an opaque cursor. An
// empty cursor means the source has never been polled; implementations
// seed a cursor without replaying their backlog.
type Source interface {
	ID() string
	Type() SourceType
	ValidateConnection(ctx context.Context) (string, error)
	FetchSince(ctx context.Context, cursor string) (*FetchResult, error)
}
