package io

import (
	"math/rand"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	dense "gonum.org/v1/gonum/mat"
)

// DataRecord is one sample: the feature vector and the two targets.
type DataRecord struct {
	Features mat.Matrix

	// Class is the binarized lane commitment label
	Class mat.Float

	// Time is the time needed to reach the lane center
	Time mat.Float
}

type DataBatch []*DataRecord

type DataSet struct {
	Data         []*DataRecord
	BatchSize    int
	Rand         *rand.Rand
	dataIndices  []int
	currentOrder []int
	currentIndex int
}

type DatasetOrder int

const (
	OriginalOrder DatasetOrder = iota
	RandomOrder
)

func (d *DataSet) ResetOrder(order DatasetOrder) {
	if d.currentOrder == nil {
		d.currentOrder = make([]int, len(d.dataIndices))
	}
	switch order {
	case OriginalOrder:
		copy(d.currentOrder, d.dataIndices)
	case RandomOrder:
		ind := d.Rand.Perm(len(d.currentOrder))
		for i := range ind {
			d.currentOrder[i] = d.dataIndices[ind[i]]
		}
	}

	d.currentIndex = 0
}

// Shuffle permutes the sample order once with a seeded generator. The order then stays fixed
// for every following pass.
func (d *DataSet) Shuffle(seed int64) {
	d.Rand = rand.New(rand.NewSource(seed))
	d.ResetOrder(RandomOrder)
}

// Rewind starts a new pass over the data keeping the current order.
func (d *DataSet) Rewind() {
	d.currentIndex = 0
}

// Next returns the following batch of at most BatchSize records, the last batch of a pass holds
// the remainder. An empty batch marks the end of the pass.
func (d *DataSet) Next() DataBatch {
	batch := make(DataBatch, 0, d.BatchSize)
	for ; d.currentIndex < len(d.currentOrder) && len(batch) < d.BatchSize; d.currentIndex++ {
		batch = append(batch, d.Data[d.currentOrder[d.currentIndex]])
	}
	return batch
}

func (d *DataSet) Size() int {
	return len(d.dataIndices)
}

// NumBatches is ceil(Size/BatchSize).
func (d *DataSet) NumBatches() int {
	return (d.Size() + d.BatchSize - 1) / d.BatchSize
}

func NewDataSet(data []*DataRecord, batchSize int) *DataSet {
	dataIndices := make([]int, len(data))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	ds := &DataSet{Data: data, BatchSize: batchSize, dataIndices: dataIndices}
	ds.ResetOrder(OriginalOrder)
	return ds
}

// NewRecords converts preprocessed X and y matrices into records, y must be binarized already.
func NewRecords(x, y *dense.Dense) []*DataRecord {
	rows, columns := x.Dims()
	result := make([]*DataRecord, rows)
	for i := range result {
		features := make([]mat.Float, columns)
		for j := range features {
			features[j] = mat.Float(x.At(i, j))
		}
		result[i] = &DataRecord{
			Features: mat.NewVecDense(features),
			Class:    mat.Float(y.At(i, 0)),
			Time:     mat.Float(y.At(i, 1)),
		}
	}
	return result
}
