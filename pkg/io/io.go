package io

import (
	"encoding/csv"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
	"gonum.org/v1/gonum/mat"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/model"
)

// DataError is a row of a feature file that could not be parsed and was skipped
type DataError struct {
	Line  int
	Error string
}

// TableReader decodes a whole feature file into a dense table, rows are samples.
type TableReader func(path string) (*mat.Dense, []DataError, error)

var formats = map[string]TableReader{
	".csv":    readCSVFile,
	".csv.xz": readCompressedCSVFile,
}

// RegisterFormat makes LoadTable accept files ending with extension.
func RegisterFormat(extension string, reader TableReader) {
	formats[strings.ToLower(extension)] = reader
}

// Formats lists the registered file extensions.
func Formats() []string {
	result := make([]string, 0, len(formats))
	for ext := range formats {
		result = append(result, ext)
	}
	sort.Strings(result)
	return result
}

func formatFor(path string) (TableReader, bool) {
	name := strings.ToLower(filepath.Base(path))
	var best string
	for ext := range formats {
		if strings.HasSuffix(name, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	if best == "" {
		return nil, false
	}
	return formats[best], true
}

// LoadTable reads a feature file. The file must exist and carry one of the registered extensions.
func LoadTable(path string) (*mat.Dense, []DataError, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, &config.ConfigurationError{Path: path, Reason: "file does not exist", Err: err}
	}
	if info.IsDir() {
		return nil, nil, &config.ConfigurationError{Path: path, Reason: "path is a directory"}
	}
	reader, ok := formatFor(path)
	if !ok {
		return nil, nil, &config.ConfigurationError{Path: path,
			Reason: fmt.Sprintf("unsupported file extension, expected one of %v", Formats())}
	}

	table, dataErrors, err := reader(path)
	if err != nil {
		return nil, dataErrors, fmt.Errorf("error loading %s: %w", path, err)
	}
	if table == nil {
		return nil, dataErrors, &config.ConfigurationError{Path: path, Reason: "file holds no data rows"}
	}
	return table, dataErrors, nil
}

func readCSVFile(path string) (*mat.Dense, []DataError, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()
	return ReadCSV(inputFile)
}

func readCompressedCSVFile(path string) (*mat.Dense, []DataError, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()

	reader, err := xz.NewReader(inputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening xz stream: %w", err)
	}
	return ReadCSV(reader)
}

// ReadCSV parses comma separated numeric rows. A first line without any numeric field is taken as a header.
// Rows that fail to parse are reported as DataErrors and skipped.
func ReadCSV(input io.Reader) (*mat.Dense, []DataError, error) {
	var dataErrors []DataError

	reader := csv.NewReader(input)
	reader.Comma = ','
	reader.TrimLeadingSpace = true

	var data []float64
	columns, rows := 0, 0
	currentLine := 0

	for record, err := reader.Read(); err != io.EOF; record, err = reader.Read() {
		currentLine++
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, dataErrors, fmt.Errorf("error reading line %d: %w", currentLine, err)
			}
			dataErrors = append(dataErrors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}

		values, err := parseRecord(record)
		if err != nil {
			//First line is allowed to be a header
			if currentLine == 1 && isHeader(record) {
				continue
			}
			dataErrors = append(dataErrors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}
		if columns == 0 {
			columns = len(values)
		}
		data = append(data, values...)
		rows++
	}

	if rows == 0 {
		return nil, dataErrors, nil
	}
	return mat.NewDense(rows, columns, data), dataErrors, nil
}

func isHeader(record []string) bool {
	for _, field := range record {
		if _, err := strconv.ParseFloat(field, 64); err == nil {
			return false
		}
	}
	return true
}

func parseRecord(record []string) ([]float64, error) {
	values := make([]float64, len(record))
	for i, field := range record {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing column %d: %w", i, err)
		}
		values[i] = value
	}
	return values, nil
}

// SaveModel encodes a checkpoint.
func SaveModel(model *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(model)
	if err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

// LoadModel decodes a checkpoint written by SaveModel.
func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	model := model.Model{}
	err := decoder.Decode(&model)
	if err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	return &model, nil
}

// SaveModelFile writes the checkpoint next to path and renames it into place, so a reader
// never observes a partially written file. An existing checkpoint is replaced.
func SaveModelFile(model *model.Model, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating checkpoint file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := SaveModel(model, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("error saving checkpoint %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("error syncing checkpoint %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing checkpoint %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error replacing checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadModelFile reads a checkpoint written by SaveModelFile.
func LoadModelFile(path string) (*model.Model, error) {
	modelFile, err := os.Open(path)
	if err != nil {
		return nil, &config.ConfigurationError{Path: path, Reason: "cannot open model file", Err: err}
	}
	defer modelFile.Close()
	return LoadModel(modelFile)
}
