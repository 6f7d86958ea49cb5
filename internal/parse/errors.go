package parse

import (
	"errors"
	"fmt"
)

var ErrInvalidEncoding = errors.New("invalid UTF-8")

// TranscriptUnreadableError means the transcript could not be read to the
// end. Nothing assembled from it should be kept.
type TranscriptUnreadableError struct {
	Path string
	Line int
	Err  error
}

func (e *TranscriptUnreadableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("transcript %s unreadable at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("transcript %s unreadable: %v", e.Path, e.Err)
}

func (e *TranscriptUnreadableError) Unwrap() error {
	return e.Err
}
