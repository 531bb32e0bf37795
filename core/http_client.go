package core

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout is used by GetHTTPClient for a non-positive timeout.
const DefaultHTTPTimeout = 30 * time.Second

// GetHTTPClient returns the client every outbound API call should use,
// with its own transport so provider connections are not shared with
// http.DefaultTransport.
func GetHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
