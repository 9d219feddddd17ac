package httpclient

import (
	"fmt"
)

// HTTPError is returned for any response outside the 2xx range so that
// callers can inspect the status code instead of parsing error strings
type HTTPError struct {
	StatusCode int
	Status     string
	Method     string
	Url        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %s", e.Method, e.Url, e.Status)
}
