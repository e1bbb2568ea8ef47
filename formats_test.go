//go:build !hdf5

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/io"
)

func TestHDF5NeedsBuildTag(t *testing.T) {
	require.NotContains(t, io.Formats(), ".h5")

	dir := t.TempDir()
	trainFile := filepath.Join(dir, "train.h5")
	writeData(t, trainFile, 4)

	trainCmd := TrainCommand()
	trainCmd.SetArgs([]string{trainFile, trainFile, "-o", filepath.Join(dir, "cruise.bin")})
	trainCmd.SilenceUsage = true
	err := trainCmd.Execute()
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "extension")
}
