package httptrigger

import (
	"context"
	stdErrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/glass/bindings/httpv01"
	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/ports"
	"github.com/reglet-dev/glass/host"
	"github.com/reglet-dev/glass/internal/testutil"
	"github.com/reglet-dev/glass/marshal"
)

type executorFunc = ports.ExecutorFunc[httpv01.Request, httpv01.Response]

func respond(resp httpv01.Response, err error) executorFunc {
	return func(context.Context, httpv01.Request) (httpv01.Response, error) {
		return resp, err
	}
}

func TestServeHTTP_TranslatesRequest(t *testing.T) {
	var got httpv01.Request
	tr := New(executorFunc(func(_ context.Context, req httpv01.Request) (httpv01.Response, error) {
		got = req
		return httpv01.Response{Status: 201}, nil
	}))

	r := httptest.NewRequest(http.MethodPut, "/items/7?force=true", strings.NewReader("payload"))
	r.Header.Add("X-B", "2")
	r.Header.Add("X-A", "1")
	r.Header.Add("X-A", "one")
	w := httptest.NewRecorder()
	tr.ServeHTTP(w, r)

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, marshal.MethodPut, got.Method)
	assert.Equal(t, "/items/7?force=true", got.URI)
	assert.Equal(t, []byte("payload"), got.Body)
	assert.Equal(t, []marshal.Header{
		{Name: "host", Value: "example.com"},
		{Name: "x-a", Value: "1"},
		{Name: "x-a", Value: "one"},
		{Name: "x-b", Value: "2"},
	}, got.Headers)
	assert.Nil(t, got.Params)
}

func TestServeHTTP_WritesResponse(t *testing.T) {
	tr := New(respond(httpv01.Response{
		Status: 418,
		Headers: []marshal.Header{
			{Name: "content-type", Value: "text/plain"},
			{Name: "set-cookie", Value: "a=1"},
			{Name: "set-cookie", Value: "b=2"},
		},
		Body: []byte("teapot"),
	}, nil))

	w := httptest.NewRecorder()
	tr.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 418, w.Code)
	assert.Equal(t, "teapot", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, w.Header().Values("Set-Cookie"))
}

func TestServeHTTP_Failures(t *testing.T) {
	tests := []struct {
		name   string
		exec   executorFunc
		method string
		status int
	}{
		{
			name:   "unsupported method",
			exec:   respond(httpv01.Response{Status: 200}, nil),
			method: "PROPFIND",
			status: http.StatusMethodNotAllowed,
		},
		{
			name:   "invocation failure",
			exec:   respond(httpv01.Response{}, &host.InvocationError{Kind: host.KindTrap, Err: stdErrors.New("unreachable")}),
			method: http.MethodGet,
			status: http.StatusInternalServerError,
		},
		{
			name:   "invocation timeout",
			exec:   respond(httpv01.Response{}, &host.InvocationError{Kind: host.KindTimeout, Err: context.DeadlineExceeded}),
			method: http.MethodGet,
			status: http.StatusGatewayTimeout,
		},
		{
			name:   "deadline",
			exec:   respond(httpv01.Response{}, context.DeadlineExceeded),
			method: http.MethodGet,
			status: http.StatusGatewayTimeout,
		},
		{
			name:   "invalid status",
			exec:   respond(httpv01.Response{Status: 42}, nil),
			method: http.MethodGet,
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			New(tt.exec).ServeHTTP(w, httptest.NewRequest(tt.method, "/", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	called := false
	tr := New(executorFunc(func(context.Context, httpv01.Request) (httpv01.Response, error) {
		called = true
		return httpv01.Response{Status: 200}, nil
	}), WithMaxBodyBytes(4))

	w := httptest.NewRecorder()
	tr.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, called)
}

func TestServeHTTP_InvalidUTF8Header(t *testing.T) {
	called := false
	tr := New(executorFunc(func(context.Context, httpv01.Request) (httpv01.Response, error) {
		called = true
		return httpv01.Response{Status: 200}, nil
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Name", "caf\xe9")
	w := httptest.NewRecorder()
	tr.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestServeHTTP_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	reg.MustRegister(counter)
	counter.Inc()

	called := false
	tr := New(executorFunc(func(context.Context, httpv01.Request) (httpv01.Response, error) {
		called = true
		return httpv01.Response{Status: 200}, nil
	}), WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	w := httptest.NewRecorder()
	tr.ServeHTTP(w, httptest.NewRequest(http.MethodGet, MetricsPath, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "probe_total 1")
	assert.False(t, called)

	// without a metrics handler the path belongs to the guest
	w = httptest.NewRecorder()
	New(respond(httpv01.Response{Status: 204}, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTrigger_Guest(t *testing.T) {
	e, err := httpv01.New(context.Background(), host.FromBytes(testutil.Compile(t, testutil.EchoURI())), entities.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	srv := httptest.NewServer(New(e))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/hello?name=glass")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/hello?name=glass", string(body))
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(respond(httpv01.Response{Status: 200, Body: []byte("up")}, nil)).Serve(ctx, ln)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRun_InvalidAddress(t *testing.T) {
	err := New(respond(httpv01.Response{}, nil)).Run(context.Background(), "not-an-address")
	require.Error(t, err)
}
