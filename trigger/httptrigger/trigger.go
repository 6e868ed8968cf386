// Package httptrigger serves HTTP requests by executing a deislabs_http_v01
// guest once per request.
package httptrigger

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reglet-dev/glass/bindings/httpv01"
	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/domain/ports"
	"github.com/reglet-dev/glass/marshal"
)

const (
	// DefaultAddress is the default listen address.
	DefaultAddress = "127.0.0.1:3000"
	// DefaultMaxBodyBytes bounds request bodies.
	DefaultMaxBodyBytes = 16 << 20
	// MetricsPath serves Prometheus metrics when a metrics handler is set.
	MetricsPath = "/metrics"

	shutdownTimeout = 10 * time.Second
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger. It is a no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the package logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l.Named("httptrigger"))
}

// Executor runs one HTTP invocation.
type Executor = ports.Executor[httpv01.Request, httpv01.Response]

// Trigger translates HTTP requests into guest invocations.
type Trigger struct {
	executor     Executor
	metrics      http.Handler
	maxBodyBytes int64
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithMetricsHandler serves h at MetricsPath instead of passing the path to the guest.
func WithMetricsHandler(h http.Handler) Option {
	return func(t *Trigger) {
		t.metrics = h
	}
}

// WithMaxBodyBytes bounds request bodies. Larger bodies are answered with 413.
func WithMaxBodyBytes(n int64) Option {
	return func(t *Trigger) {
		if n > 0 {
			t.maxBodyBytes = n
		}
	}
}

// New creates a trigger executing requests with exec.
func New(exec Executor, opts ...Option) *Trigger {
	t := &Trigger{executor: exec, maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServeHTTP implements http.Handler.
func (t *Trigger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.metrics != nil && r.URL.Path == MetricsPath {
		t.metrics.ServeHTTP(w, r)
		return
	}
	start := time.Now()

	req, status, err := t.translate(w, r)
	if err != nil {
		Logger().Debug("request rejected", zap.String("method", r.Method), zap.String("uri", r.RequestURI), zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}

	resp, err := t.executor.Execute(r.Context(), req)
	if err != nil {
		status := failureStatus(err)
		Logger().Error("invocation failed",
			zap.String("method", r.Method),
			zap.String("uri", req.URI),
			zap.Int("status", status),
			zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	if resp.Status < 100 || resp.Status > 599 {
		Logger().Error("guest returned an invalid status", zap.Uint16("status", resp.Status))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	for _, h := range resp.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(int(resp.Status))
	if _, err := w.Write(resp.Body); err != nil {
		Logger().Debug("failed to write response body", zap.Error(err))
	}
	Logger().Info("request served",
		zap.String("method", r.Method),
		zap.String("uri", req.URI),
		zap.Uint16("status", resp.Status),
		zap.Duration("elapsed", time.Since(start)))
}

// translate builds the guest request. On failure it returns the status to answer with.
func (t *Trigger) translate(w http.ResponseWriter, r *http.Request) (httpv01.Request, int, error) {
	method, err := marshal.ParseMethod(r.Method)
	if err != nil {
		return httpv01.Request{}, http.StatusMethodNotAllowed, err
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			return httpv01.Request{}, http.StatusRequestEntityTooLarge, err
		}
		return httpv01.Request{}, http.StatusBadRequest, err
	}

	headers := requestHeaders(r)
	for _, h := range headers {
		if err := marshal.ValidateHeader(h.Name, h.Value); err != nil {
			return httpv01.Request{}, http.StatusBadRequest, err
		}
	}

	return httpv01.Request{
		Method:  method,
		URI:     r.URL.RequestURI(),
		Headers: headers,
		Body:    body,
	}, 0, nil
}

// requestHeaders flattens r's headers in name order, names lower-cased.
// Host is carried separately by net/http and is added back first.
func requestHeaders(r *http.Request) []marshal.Header {
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]marshal.Header, 0, len(names)+1)
	if r.Host != "" {
		out = append(out, marshal.Header{Name: "host", Value: r.Host})
	}
	for _, name := range names {
		for _, v := range r.Header[name] {
			out = append(out, marshal.Header{Name: strings.ToLower(name), Value: v})
		}
	}
	return out
}

type timeout interface {
	Timeout() bool
}

func failureStatus(err error) int {
	var t timeout
	if stdErrors.As(err, &t) && t.Timeout() {
		return http.StatusGatewayTimeout
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Serve answers requests on ln until ctx is done, then shuts down gracefully.
func (t *Trigger) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           t,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		Logger().Info("listening", zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Run listens on address and serves until ctx is done.
func (t *Trigger) Run(ctx context.Context, address string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return &errors.NetworkError{Operation: "listen", Target: address, Err: err}
	}
	return t.Serve(ctx, ln)
}
