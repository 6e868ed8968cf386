package registry

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/reglet-dev/glass/domain/errors"
)

var module = []byte("\x00asm\x01\x00\x00\x00")

func registryServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/v1/hello/1.0.0" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(module)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.wasm")
	require.NoError(t, os.WriteFile(path, module, 0o600))

	got, err := LocalResolver{}.Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = LocalResolver{}.Resolve(context.Background(), filepath.Join(dir, "missing.wasm"))
	assert.Error(t, err)

	_, err = LocalResolver{}.Resolve(context.Background(), dir)
	assert.Error(t, err, "directories are not modules")
}

func TestParseReference(t *testing.T) {
	name, d, err := ParseReference("hello/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "hello/1.0.0", name)
	assert.Empty(t, d)

	want := digest.FromBytes(module)
	name, d, err = ParseReference("hello/1.0.0@" + want.String())
	require.NoError(t, err)
	assert.Equal(t, "hello/1.0.0", name)
	assert.Equal(t, want, d)

	_, _, err = ParseReference("hello@sha256:nothex")
	assert.Error(t, err)
	_, _, err = ParseReference("@" + want.String())
	assert.Error(t, err)
}

func TestHTTPResolver_Download(t *testing.T) {
	var hits atomic.Int32
	srv := registryServer(t, &hits)
	cache := t.TempDir()

	r, err := NewHTTPResolver(srv.URL+"/v1/", cache)
	require.NoError(t, err)

	reference := "hello/1.0.0@" + digest.FromBytes(module).String()
	path, err := r.Resolve(context.Background(), reference)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, EntrypointPath(reference)), path)
	assert.Equal(t, filepath.Join(cache, ".wasi", "_linking"), filepath.Dir(filepath.Dir(path)))
	assert.Equal(t, "entrypoint.wasm", filepath.Base(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, module, got)
}

func TestHTTPResolver_DigestMismatch(t *testing.T) {
	var hits atomic.Int32
	srv := registryServer(t, &hits)
	cache := t.TempDir()

	r, err := NewHTTPResolver(srv.URL+"/v1", cache)
	require.NoError(t, err)

	reference := "hello/1.0.0@" + digest.FromString("something else").String()
	_, err = r.Resolve(context.Background(), reference)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match digest")

	_, statErr := os.Stat(filepath.Join(cache, EntrypointPath(reference)))
	assert.True(t, os.IsNotExist(statErr), "an unverified module is never stored")
}

func TestHTTPResolver_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := registryServer(t, &hits)

	r, err := NewHTTPResolver(srv.URL+"/v1", t.TempDir())
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "missing/0.1.0")
	var nerr *errors.NetworkError
	require.True(t, stdErrors.As(err, &nerr), "want NetworkError, got %v", err)
	assert.Equal(t, "fetch", nerr.Operation)
}

func TestHTTPResolver_ConcurrentResolves(t *testing.T) {
	var hits atomic.Int32
	srv := registryServer(t, &hits)

	r, err := NewHTTPResolver(srv.URL+"/v1", t.TempDir())
	require.NoError(t, err)

	const n = 16
	paths := make([]string, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			p, err := r.Resolve(context.Background(), "hello/1.0.0")
			paths[i] = p
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
	assert.LessOrEqual(t, hits.Load(), int32(n))
}

func TestHTTPResolver_DistinctReferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	r, err := NewHTTPResolver(srv.URL+"/v1", t.TempDir())
	require.NoError(t, err)

	references := []string{"a/1.0.0", "b/1.0.0", "c/2.0.0", "d/0.1.0"}
	paths := make([]string, len(references))
	var g errgroup.Group
	for i, reference := range references {
		g.Go(func() error {
			p, err := r.Resolve(context.Background(), reference)
			paths[i] = p
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i, reference := range references {
		got, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, "/v1/"+reference, string(got))
	}
}

func TestNewHTTPResolver_Invalid(t *testing.T) {
	_, err := NewHTTPResolver("localhost:8000", t.TempDir())
	assert.Error(t, err)

	_, err = NewHTTPResolver("http://localhost:8000/v1", "")
	assert.Error(t, err)
}
