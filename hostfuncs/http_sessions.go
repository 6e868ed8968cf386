package hostfuncs

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/domain/ports"
)

// HTTPErrno is the error value returned to guests by the outbound HTTP imports.
type HTTPErrno uint32

const (
	HTTPSuccess HTTPErrno = iota
	HTTPInvalidHandle
	HTTPMemoryNotFound
	HTTPMemoryAccessError
	HTTPBufferTooSmall
	HTTPHeaderNotFound
	HTTPUtf8Error
	HTTPDestinationNotAllowed
	HTTPInvalidMethod
	HTTPInvalidEncoding
	HTTPInvalidURL
	HTTPRequestError
	HTTPRuntimeError
	HTTPTooManySessions
)

var httpErrnoNames = [...]string{
	"success",
	"invalid handle",
	"memory not found",
	"memory access error",
	"buffer too small",
	"header not found",
	"utf-8 error",
	"destination not allowed",
	"invalid method",
	"invalid encoding",
	"invalid url",
	"request error",
	"runtime error",
	"too many sessions",
}

func (e HTTPErrno) Error() string {
	if int(e) < len(httpErrnoNames) {
		return httpErrnoNames[e]
	}
	return fmt.Sprintf("http errno %d", uint32(e))
}

// AsHTTPErrno extracts the guest-facing error value from err.
// Errors that carry no errno map to HTTPRuntimeError.
func AsHTTPErrno(err error) HTTPErrno {
	if err == nil {
		return HTTPSuccess
	}
	var errno HTTPErrno
	if stdErrors.As(err, &errno) {
		return errno
	}
	return HTTPRuntimeError
}

var allowedMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "PATCH": true, "OPTIONS": true,
}

// openResponse is a fully read outbound response awaiting guest reads.
type openResponse struct {
	headers map[string][]string
	body    []byte
	offset  int
	status  int
}

// HTTPSessions is the per-invocation table of open outbound responses.
// It belongs to exactly one guest instance; guests are single-threaded so it
// needs no locking.
type HTTPSessions struct {
	client    ports.HTTPClient
	responses map[uint32]*openResponse
	allow     AllowList
	max       int
	next      uint32
}

// NewHTTPSessions creates an empty table. maxOpen bounds concurrently open
// responses; zero means unlimited.
func NewHTTPSessions(client ports.HTTPClient, allow AllowList, maxOpen int) *HTTPSessions {
	return &HTTPSessions{
		client:    client,
		allow:     allow,
		max:       maxOpen,
		responses: make(map[uint32]*openResponse),
	}
}

// Len returns the number of open responses.
func (s *HTTPSessions) Len() int {
	return len(s.responses)
}

// Request performs an outbound request and returns a handle to its response.
// Returned errors are HTTPErrno values; an allow-list rejection yields
// HTTPDestinationNotAllowed before any network traffic.
func (s *HTTPSessions) Request(ctx context.Context, method, rawURL string, headers map[string][]string, body []byte) (uint32, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, 0, HTTPInvalidURL
	}
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return 0, 0, HTTPInvalidMethod
	}
	if err := s.allow.Check(u); err != nil {
		Logger().Warn("outbound request blocked by allow-list", zap.Error(err))
		return 0, 0, HTTPDestinationNotAllowed
	}
	if s.max > 0 && len(s.responses) >= s.max {
		return 0, 0, HTTPTooManySessions
	}
	if s.client == nil {
		Logger().Error("outbound request without HTTP client", zap.Error(&errors.NotConfiguredError{Capability: "http client"}))
		return 0, 0, HTTPRuntimeError
	}

	resp, err := s.client.Do(ctx, ports.HTTPRequest{Method: method, URL: u.String(), Headers: headers, Body: body})
	if err != nil {
		var pe *errors.PolicyError
		if stdErrors.As(err, &pe) {
			Logger().Warn("outbound redirect blocked by allow-list", zap.Error(err))
			return 0, 0, HTTPDestinationNotAllowed
		}
		Logger().Debug("outbound request failed", zap.String("url", u.Redacted()), zap.Error(err))
		return 0, 0, HTTPRequestError
	}

	s.next++
	handle := s.next
	s.responses[handle] = &openResponse{status: resp.StatusCode, headers: resp.Headers, body: resp.Body}
	return handle, resp.StatusCode, nil
}

// Close releases a response handle.
func (s *HTTPSessions) Close(handle uint32) error {
	if _, ok := s.responses[handle]; !ok {
		return HTTPInvalidHandle
	}
	delete(s.responses, handle)
	return nil
}

// Header returns the values of a response header joined by ", ".
func (s *HTTPSessions) Header(handle uint32, name string) (string, error) {
	r, ok := s.responses[handle]
	if !ok {
		return "", HTTPInvalidHandle
	}
	for k, values := range r.headers {
		if strings.EqualFold(k, name) {
			return strings.Join(values, ", "), nil
		}
	}
	return "", HTTPHeaderNotFound
}

// Headers returns every response header.
func (s *HTTPSessions) Headers(handle uint32) (map[string][]string, error) {
	r, ok := s.responses[handle]
	if !ok {
		return nil, HTTPInvalidHandle
	}
	return r.headers, nil
}

// ReadBody returns up to n unread body bytes and advances the read offset.
// An exhausted body returns an empty slice.
func (s *HTTPSessions) ReadBody(handle uint32, n int) ([]byte, error) {
	r, ok := s.responses[handle]
	if !ok {
		return nil, HTTPInvalidHandle
	}
	end := r.offset + n
	if end > len(r.body) {
		end = len(r.body)
	}
	chunk := r.body[r.offset:end]
	r.offset = end
	return chunk, nil
}

// CloseAll releases every open response.
func (s *HTTPSessions) CloseAll() {
	clear(s.responses)
}
