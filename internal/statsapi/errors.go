package statsapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cam3ron2/gh-dashboard/internal/widget"
)

// StatusError is a non-success backend response. Message is safe to show to users.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// UserMessage returns Message.
func (e *StatusError) UserMessage() string {
	return e.Message
}

// NotFound reports whether the subject or region of the request does not exist.
func (e *StatusError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// RateLimited reports whether the backend refused the request for rate-limit reasons.
func (e *StatusError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.NotFound()
}

// Classify maps fetch errors to widget error kinds. 404s are terminal for a selector and
// everything else, network failures included, may succeed on retry.
func Classify(err error) widget.ErrorKind {
	if IsNotFound(err) {
		return widget.KindNotFound
	}
	return widget.KindTransient
}

func newStatusError(op string, status int, notFoundMessage string) *StatusError {
	message := fmt.Sprintf("Failed to fetch %s: %s", op, statusText(status))
	if status == http.StatusNotFound && notFoundMessage != "" {
		message = notFoundMessage
	}
	return &StatusError{
		Op:      op,
		Status:  status,
		Message: message,
	}
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
