package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// httpDoer is the transport both adapters share. Request URLs are built by
// string concatenation on a trailing-slash-stripped base URL; url.URL
// re-encoding would mangle the pre-encoded GitLab project ids.
type httpDoer struct {
	client *http.Client
}

func newHTTPDoer(client *http.Client) httpDoer {
	if client == nil {
		client = http.DefaultClient
	}
	return httpDoer{client: client}
}

type header struct {
	key   string
	value string
}

// do performs a request and returns the response body. On 2xx the body is
// returned; otherwise a *StatusError carrying the status, the body text and
// any Retry-After suggestion.
func (d httpDoer) do(ctx context.Context, method, url string, requestBody any, headers ...header) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("remote: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		request.Header.Set(h.key, h.value)
	}

	response, err := d.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %w", method, url, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	return nil, &StatusError{
		Status:     response.StatusCode,
		Body:       string(responseBody),
		RetryAfter: parseRetryAfter(response.Header.Get("Retry-After")),
	}
}

// parseRetryAfter handles the delta-seconds form; the HTTP-date form is rare
// on the provider APIs and ignored.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
