package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultModel(), m)
	require.Equal(t, 85, m.Columns())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cruise.yaml")
	content := `
cruise_mlp:
  dim_input: 10
  dim_hidden_1: 8
  dim_hidden_2: 4
  dim_output: 3
  classifier_hidden: [6]
  cascade: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Dimensions{DimInput: 10, DimHidden1: 8, DimHidden2: 4, DimOutput: 3}, m.Dimensions)
	require.Equal(t, []int{6}, m.ClassifierHidden)
	require.False(t, m.Cascade)
	require.Equal(t, DefaultModel().Dropout, m.Dropout)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("cruise_mlp:\n  dim_output: 1\n"), 0600))
	_, err = Load(invalid)
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, invalid, cfgErr.Path)
	require.Contains(t, err.Error(), "dim_output")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		model func(m *Model)
		valid bool
	}{
		{name: "defaults", model: func(m *Model) {}, valid: true},
		{name: "no input", model: func(m *Model) { m.DimInput = 0 }},
		{name: "no hidden", model: func(m *Model) { m.DimHidden2 = -1 }},
		{name: "single output", model: func(m *Model) { m.DimOutput = 1 }},
		{name: "bad classifier", model: func(m *Model) { m.ClassifierHidden = []int{4, 0} }},
		{name: "bad dropout", model: func(m *Model) { m.Dropout = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultModel()
			tt.model(&m)
			err := m.Validate()
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
