//go:build hdf5

package main

import (
	_ "cruisemlp/pkg/io/hdf5"
)
