package mastodon

import "fmt"

// TransportError is returned when a request could not be completed at the
// connection level (DNS, dial, TLS, timeout, reading the body).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is returned when verify_credentials answers with a non-2xx status
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed with status %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError is returned when a response body or pagination link
// cannot be interpreted
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// HTTPError describes a page that came back with a non-2xx status
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}
