package sound

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the user declined audible alerts.
	ErrPermissionDenied = errors.New("sound permission denied")

	// ErrGestureRequired is returned by Unlock when autoplay is restricted
	// and no user interaction has been seen yet.
	ErrGestureRequired = errors.New("user gesture required to unlock playback")

	// ErrNoPipeline is returned when no playback pipeline is configured.
	ErrNoPipeline = errors.New("no playback pipeline available")
)

// PlaybackError records a failed playback stage.
type PlaybackError struct {
	// Stage is "prime", "primary" or "fallback".
	Stage    string
	Pipeline string
	Err      error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s playback via %s failed: %v", e.Stage, e.Pipeline, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
