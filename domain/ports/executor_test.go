package ports

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockOutputBinding records every output written to it.
type MockOutputBinding struct {
	Outputs []string
	Err     error
}

func (m *MockOutputBinding) Write(_ context.Context, output string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Outputs = append(m.Outputs, output)
	return nil
}

func TestExecutorFunc(t *testing.T) {
	var exec Executor[string, string] = ExecutorFunc[string, string](func(_ context.Context, in string) (string, error) {
		if in == "" {
			return "", errors.New("empty input")
		}
		return strings.ToUpper(in), nil
	})

	out, err := exec.Execute(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "PING", out)

	_, err = exec.Execute(context.Background(), "")
	assert.EqualError(t, err, "empty input")
}

func TestMockOutputBinding(t *testing.T) {
	var out OutputBinding = &MockOutputBinding{}
	require.NoError(t, out.Write(context.Background(), "PONG: a"))
	require.NoError(t, out.Write(context.Background(), "PONG: b"))
	assert.Equal(t, []string{"PONG: a", "PONG: b"}, out.(*MockOutputBinding).Outputs)

	failing := &MockOutputBinding{Err: errors.New("closed")}
	assert.EqualError(t, failing.Write(context.Background(), "x"), "closed")
}
