// Package registry resolves module references to local files before a
// template is built.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/domain/ports"
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
	logger.Store(l.Named("registry"))
}

// LinkingDir is where downloaded modules are stored, relative to the cache directory.
// Each reference gets its own subdirectory holding EntrypointFile.
var LinkingDir = filepath.Join(".wasi", "_linking")

// EntrypointFile is the file name of a downloaded module.
const EntrypointFile = "entrypoint.wasm"

// EntrypointPath returns where the module for reference is stored, relative to the cache directory.
func EntrypointPath(reference string) string {
	return filepath.Join(LinkingDir, digest.FromString(reference).Encoded()[:16], EntrypointFile)
}

// LocalResolver resolves references that are local file paths.
type LocalResolver struct{}

var _ ports.Resolver = LocalResolver{}

// Resolve checks that reference names a regular file and returns its absolute path.
func (LocalResolver) Resolve(_ context.Context, reference string) (string, error) {
	abs, err := filepath.Abs(reference)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", reference, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("module %q: %w", reference, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("module %q is not a regular file", reference)
	}
	return abs, nil
}

// HTTPResolver downloads "<server>/<name>" into the cache directory. A
// reference of the form "name@sha256:<hex>" is verified against the digest.
type HTTPResolver struct {
	client   *http.Client
	group    singleflight.Group
	server   string
	cacheDir string
}

var _ ports.Resolver = (*HTTPResolver)(nil)

// HTTPResolverOption configures an HTTPResolver.
type HTTPResolverOption func(*HTTPResolver)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) HTTPResolverOption {
	return func(r *HTTPResolver) {
		r.client = c
	}
}

// NewHTTPResolver creates a resolver for server storing modules under cacheDir.
func NewHTTPResolver(server, cacheDir string, opts ...HTTPResolverOption) (*HTTPResolver, error) {
	u, err := url.Parse(server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &errors.ConfigError{Field: "server", Err: fmt.Errorf("invalid registry server %q", server)}
	}
	if cacheDir == "" {
		return nil, &errors.ConfigError{Field: "cache_dir", Err: fmt.Errorf("cache directory is required")}
	}
	r := &HTTPResolver{
		client:   &http.Client{Timeout: 5 * time.Minute},
		server:   strings.TrimRight(server, "/"),
		cacheDir: cacheDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve downloads the module named by reference and returns its path.
// Concurrent calls for the same reference share a single download.
func (r *HTTPResolver) Resolve(ctx context.Context, reference string) (string, error) {
	v, err, shared := r.group.Do(reference, func() (any, error) {
		return r.download(ctx, reference)
	})
	if err != nil {
		return "", err
	}
	if shared {
		Logger().Debug("joined in-flight download", zap.String("reference", reference))
	}
	return v.(string), nil //nolint:forcetypeassert // download returns a string
}

// ParseReference splits "name[@digest]".
func ParseReference(reference string) (string, digest.Digest, error) {
	name, dgst, hasDigest := strings.Cut(reference, "@")
	if name == "" {
		return "", "", fmt.Errorf("reference %q has no name", reference)
	}
	if !hasDigest {
		return name, "", nil
	}
	d, err := digest.Parse(dgst)
	if err != nil {
		return "", "", fmt.Errorf("reference %q: %w", reference, err)
	}
	return name, d, nil
}

func (r *HTTPResolver) download(ctx context.Context, reference string) (string, error) {
	name, expected, err := ParseReference(reference)
	if err != nil {
		return "", err
	}
	target := r.server + "/" + strings.TrimLeft(name, "/")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &errors.NetworkError{Operation: "fetch", Target: target, Err: err}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", &errors.NetworkError{Operation: "fetch", Target: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", &errors.NetworkError{Operation: "fetch", Target: target,
			Err: fmt.Errorf("registry answered %s", resp.Status)}
	}

	dest := filepath.Join(r.cacheDir, EntrypointPath(reference))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "entrypoint-*.wasm")
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	var w io.Writer = tmp
	var verifier digest.Verifier
	if expected != "" {
		verifier = expected.Verifier()
		w = io.MultiWriter(tmp, verifier)
	}
	n, err := io.Copy(w, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", &errors.NetworkError{Operation: "download", Target: target, Err: err}
	}
	if verifier != nil && !verifier.Verified() {
		return "", fmt.Errorf("module %s does not match digest %s", target, expected)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("store module: %w", err)
	}

	Logger().Info("module downloaded",
		zap.String("reference", reference),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return dest, nil
}
