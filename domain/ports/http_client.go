package ports

import "context"

// HTTPClient performs outbound requests on behalf of guests. The allow-list
// has already been applied to URL when Do is called.
type HTTPClient interface {
	Do(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest is an outbound request issued by a guest.
type HTTPRequest struct {
	Headers map[string][]string
	Method  string
	URL     string
	Body    []byte
}

// HTTPResponse is an outbound response with its body fully read.
type HTTPResponse struct {
	Headers    map[string][]string
	Body       []byte
	StatusCode int
	// Truncated reports that Body was cut at the client's size limit.
	Truncated bool
}
