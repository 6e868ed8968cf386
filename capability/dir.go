package capability

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir is a vetted directory grant. It can only be created by OpenDir.
type Dir struct {
	guest string
	host  string
}

// OpenDir checks that host exists and is a directory and returns a grant that
// exposes it to the guest at guest.
func OpenDir(guest, host string) (Dir, error) {
	if guest == "" {
		return Dir{}, fmt.Errorf("guest path for %q cannot be empty", host)
	}
	abs, err := filepath.Abs(host)
	if err != nil {
		return Dir{}, fmt.Errorf("resolve %q: %w", host, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Dir{}, fmt.Errorf("open directory %q: %w", host, err)
	}
	if !info.IsDir() {
		return Dir{}, fmt.Errorf("%q is not a directory", host)
	}
	return Dir{guest: guest, host: abs}, nil
}

// GuestPath returns the path the guest sees.
func (d Dir) GuestPath() string { return d.guest }

// HostPath returns the absolute host path.
func (d Dir) HostPath() string { return d.host }
