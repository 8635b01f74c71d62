package httputil

import (
	"io"
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response ends up in a log line.
const maxErrorBody = 512

// NewClient returns an HTTP client with the given timeout, or DefaultTimeout
// when timeout is zero.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// TruncateBody shortens s for inclusion in an error message.
func TruncateBody(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "...(truncated)"
}

// ReadErrorBody reads at most a log line's worth of an error response.
func ReadErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody+1))
	return TruncateBody(string(b))
}
