package pkg

import (
	"errors"

	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog/log"

	"cruisemlp/pkg/config"
	"cruisemlp/pkg/io"
)

func printDataErrors(errors []io.DataError) {
	for _, err := range errors {
		log.Error().Msgf("Error parsing data at line %d: %s", err.Line, err.Error)
	}
}

// loadDataSet reads a feature file and preprocesses it into batches in file order.
func loadDataSet(path string, dims config.Dimensions, batchSize int) (*io.DataSet, error) {
	table, dataErrors, err := io.LoadTable(path)
	printDataErrors(dataErrors)
	if err != nil {
		return nil, err
	}

	x, y, err := io.Preprocess(table, dims)
	if err != nil {
		var schemaErr *io.SchemaError
		if errors.As(err, &schemaErr) {
			schemaErr.Path = path
		}
		return nil, err
	}

	rows, _ := x.Dims()
	log.Debug().Str("file", path).Int("rows", rows).Int("skipped", len(dataErrors)).Msg("Loaded data")
	return io.NewDataSet(io.NewRecords(x, y), batchSize), nil
}

// LogHost logs the CPU the tensor kernels run on.
func LogHost() {
	log.Info().
		Str("cpu", cpuid.CPU.BrandName).
		Int("cores", cpuid.CPU.PhysicalCores).
		Int("threads", cpuid.CPU.LogicalCores).
		Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)).
		Bool("avx512", cpuid.CPU.Supports(cpuid.AVX512F)).
		Msg("Host")
}
