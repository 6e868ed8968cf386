package host

import (
	"fmt"
	"os"
)

// Source supplies the bytes of a guest module.
type Source interface {
	Bytes() ([]byte, error)
	String() string
}

type fileSource string

// FromFile reads the module from a local path at build time.
func FromFile(path string) Source {
	return fileSource(path)
}

func (s fileSource) Bytes() ([]byte, error) {
	b, err := os.ReadFile(string(s))
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	return b, nil
}

func (s fileSource) String() string {
	return string(s)
}

type byteSource []byte

// FromBytes uses an in-memory module. The slice must not be modified until
// Build returns.
func FromBytes(b []byte) Source {
	return byteSource(b)
}

func (s byteSource) Bytes() ([]byte, error) {
	return s, nil
}

func (s byteSource) String() string {
	return fmt.Sprintf("<%d bytes>", len(s))
}
