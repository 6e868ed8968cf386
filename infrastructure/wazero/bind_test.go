package wazero

import (
	stdErrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
)

func TestBindAll(t *testing.T) {
	table := NewTable()
	require.NoError(t, BindAll(table, entities.DefaultConfig()))

	assert.Equal(t, []string{NamespaceInference, NamespaceHTTP, NamespaceWASI}, table.Namespaces())

	var names []string
	for _, d := range table.Definitions(NamespaceHTTP) {
		names = append(names, d.Name)
		assert.Equal(t, FamilyHTTP, d.Family)
		assert.Equal(t, TouchesHTTP, d.Touches)
	}
	assert.Equal(t, []string{"body_read", "close", "header_get", "headers_get_all", "req"}, names)

	names = nil
	for _, d := range table.Definitions(NamespaceInference) {
		names = append(names, d.Name)
		assert.Equal(t, TouchesInference, d.Touches)
	}
	assert.Equal(t, []string{"compute", "get_output", "init_execution_context", "load", "set_input"}, names)

	req, ok := table.Lookup(NamespaceHTTP, "req")
	require.True(t, ok)
	assert.Len(t, req.Params, 10)
	assert.Len(t, req.Results, 1)
}

func TestBind_OrderIrrelevant(t *testing.T) {
	forward, backward := NewTable(), NewTable()
	for i := range Families {
		require.NoError(t, Bind(forward, Families[i], entities.DefaultConfig()))
		require.NoError(t, Bind(backward, Families[len(Families)-1-i], entities.DefaultConfig()))
	}
	assert.Equal(t, forward.Namespaces(), backward.Namespaces())
	for _, ns := range forward.Namespaces() {
		assert.Equal(t, len(forward.Definitions(ns)), len(backward.Definitions(ns)), ns)
	}
}

func TestBind_Errors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name   string
		family Family
		cfg    entities.Config
		phase  errors.BuildPhase
	}{
		{"missing directory", FamilyOS, entities.NewConfig(entities.WithDir("/data", filepath.Join(t.TempDir(), "nope"))), errors.PhasePreopen},
		{"file instead of directory", FamilyOS, entities.NewConfig(entities.WithDir("/data", file)), errors.PhasePreopen},
		{"bad allow-list", FamilyHTTP, entities.NewConfig(entities.WithAllowedHTTPHosts("")), errors.PhaseConfigure},
		{"unknown family", Family(42), entities.DefaultConfig(), errors.PhaseBind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Bind(NewTable(), tt.family, tt.cfg)
			var berr *errors.BuildError
			require.True(t, stdErrors.As(err, &berr), "want BuildError, got %v", err)
			assert.Equal(t, tt.phase, berr.Phase)
		})
	}
}

func TestBind_DuplicateFamilyStrict(t *testing.T) {
	table := NewTable(WithStrictNames())
	require.NoError(t, Bind(table, FamilyHTTP, entities.DefaultConfig()))

	err := Bind(table, FamilyHTTP, entities.DefaultConfig())
	var berr *errors.BuildError
	require.True(t, stdErrors.As(err, &berr))
	assert.Equal(t, errors.PhaseBind, berr.Phase)
	assert.Equal(t, NamespaceHTTP+".req", berr.Name)
}
