//go:build hdf5

// Package hdf5 registers the ".h5" feature file format: a single two dimensional numeric dataset
// stored under the key "data". Importing the package for its side effect enables the format.
// The package wraps the HDF5 C library and is only built with the hdf5 tag.
package hdf5

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/hdf5"

	"cruisemlp/pkg/io"
)

// DatasetName is the key the feature table is stored under.
const DatasetName = "data"

func init() {
	io.RegisterFormat(".h5", ReadFile)
}

// ReadFile loads the DatasetName dataset of an HDF5 file as a dense table.
func ReadFile(path string) (*mat.Dense, []io.DataError, error) {
	file, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening hdf5 file: %w", err)
	}
	defer file.Close()

	dataset, err := file.OpenDataset(DatasetName)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening dataset %q: %w", DatasetName, err)
	}
	defer dataset.Close()

	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading shape of dataset %q: %w", DatasetName, err)
	}
	if len(dims) != 2 {
		return nil, nil, fmt.Errorf("dataset %q must be two dimensional, got shape %v", DatasetName, dims)
	}
	rows, columns := int(dims[0]), int(dims[1])
	if rows == 0 || columns == 0 {
		return nil, nil, nil
	}

	data := make([]float64, rows*columns)
	if err := dataset.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("error reading dataset %q: %w", DatasetName, err)
	}
	return mat.NewDense(rows, columns, data), nil, nil
}
