package transport

import (
	"fmt"
	"strings"
)

// ServerError reports a response whose body could not be decoded as the
// expected payload, or an explicit server-side failure. Message carries the
// first line of the raw body as diagnostic text. Not retried: a schema
// mismatch does not fix itself.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("server error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

// firstLine trims body down to its first non-empty line for diagnostics.
func firstLine(body []byte) string {
	s := strings.TrimSpace(string(body))
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	const max = 200
	if len(s) > max {
		s = s[:max]
	}
	return s
}
