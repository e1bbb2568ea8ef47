package io

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cruisemlp/pkg/config"
)

// SchemaError reports a feature table with fewer columns than the configured dimensions need.
type SchemaError struct {
	Path     string
	Columns  int
	Required int
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema error: table has %d columns, dim_input+dim_output requires %d", e.Columns, e.Required)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return msg
}

// Preprocess splits a feature table into the input matrix X (the first DimInput columns) and the
// target matrix y (the last DimOutput columns). Rows keep their order.
//
// X is a view of the table. y is a copy, its column 0 is binarized with Binarize so the table
// itself is left untouched.
func Preprocess(table *mat.Dense, dims config.Dimensions) (*mat.Dense, *mat.Dense, error) {
	rows, columns := table.Dims()
	if columns < dims.Columns() {
		return nil, nil, &SchemaError{Columns: columns, Required: dims.Columns()}
	}

	x := table.Slice(0, rows, 0, dims.DimInput).(*mat.Dense)
	y := mat.DenseCopyOf(table.Slice(0, rows, columns-dims.DimOutput, columns))
	Binarize(y)
	return x, y, nil
}

// Binarize rewrites column 0 of y in place: positive values become 1, everything else 0.
func Binarize(y *mat.Dense) {
	rows, _ := y.Dims()
	for i := 0; i < rows; i++ {
		if y.At(i, 0) > 0 {
			y.Set(i, 0, 1.0)
		} else {
			y.Set(i, 0, 0.0)
		}
	}
}
