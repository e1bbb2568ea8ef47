package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/history"
)

const testConfig = `cruise_mlp:
  dim_input: 4
  dim_hidden_1: 5
  dim_hidden_2: 3
  dim_output: 2
  classifier_hidden: [3]
  dropout: 0.0
  cascade: true
`

func writeData(t *testing.T, path string, rows int) {
	var b strings.Builder
	b.WriteString("f0,f1,f2,f3,class,time\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%.2f,%.2f,%.2f,%.2f,%d,%.1f\n",
			float64(i%3), float64(i%5)/5, float64(i%2), float64(i)/float64(rows), i%4-1, float64(i%12))
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
}

func TestTrainAndEval(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(testConfig), 0600))
	trainFile := filepath.Join(dir, "train.csv")
	validFile := filepath.Join(dir, "valid.csv")
	writeData(t, trainFile, 40)
	writeData(t, validFile, 12)
	checkpoint := filepath.Join(dir, "cruise.bin")
	historyFile := filepath.Join(dir, "history.db")

	trainCmd := TrainCommand()
	trainCmd.SetArgs([]string{trainFile, validFile, "-c", configFile, "-o", checkpoint, "-n", "3", "-b", "16",
		"--valid-batch-size", "8", "--history-db", historyFile})
	require.NoError(t, trainCmd.Execute())

	_, err := os.Stat(checkpoint)
	require.NoError(t, err)

	store, err := history.Open(historyFile)
	require.NoError(t, err)
	defer store.Close()

	evalCmd := EvalCommand()
	var out bytes.Buffer
	evalCmd.SetOut(&out)
	evalCmd.SetArgs([]string{checkpoint, validFile, "-b", "5"})
	require.NoError(t, evalCmd.Execute())
	require.Contains(t, out.String(), "ACCURACY")
	require.Contains(t, out.String(), "12")
}

func TestTrainCommandErrors(t *testing.T) {
	dir := t.TempDir()
	validFile := filepath.Join(dir, "valid.csv")
	writeData(t, validFile, 4)

	trainCmd := TrainCommand()
	trainCmd.SetArgs([]string{filepath.Join(dir, "missing.csv"), validFile, "-o", filepath.Join(dir, "cruise.bin")})
	trainCmd.SilenceUsage = true
	err := trainCmd.Execute()
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	trainCmd = TrainCommand()
	trainCmd.SetArgs([]string{validFile})
	trainCmd.SilenceUsage = true
	require.Error(t, trainCmd.Execute())

	// The default dimensions need 85 columns
	trainCmd = TrainCommand()
	trainCmd.SetArgs([]string{validFile, validFile, "-o", filepath.Join(dir, "cruise.bin")})
	trainCmd.SilenceUsage = true
	require.Error(t, trainCmd.Execute())
}
