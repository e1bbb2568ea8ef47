package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dimensions are the shapes baked into the network topology. They must agree with the
// column layout of the feature tables: DimInput feature columns followed by DimOutput targets.
type Dimensions struct {
	DimInput   int `yaml:"dim_input"`
	DimHidden1 int `yaml:"dim_hidden_1"`
	DimHidden2 int `yaml:"dim_hidden_2"`
	DimOutput  int `yaml:"dim_output"`
}

// Columns is the minimum number of columns a feature table must carry.
func (d Dimensions) Columns() int {
	return d.DimInput + d.DimOutput
}

func (d Dimensions) Validate() error {
	switch {
	case d.DimInput <= 0:
		return &ConfigurationError{Reason: fmt.Sprintf("dim_input must be positive, got %d", d.DimInput)}
	case d.DimHidden1 <= 0 || d.DimHidden2 <= 0:
		return &ConfigurationError{Reason: fmt.Sprintf("hidden dimensions must be positive, got %d and %d", d.DimHidden1, d.DimHidden2)}
	case d.DimOutput < 2:
		return &ConfigurationError{Reason: fmt.Sprintf("dim_output must be at least 2 (class, time), got %d", d.DimOutput)}
	}
	return nil
}

// Topology describes the layer sizes of the two heads that are not covered by Dimensions.
type Topology struct {
	// ClassifierHidden are the hidden layer sizes of the classification head
	ClassifierHidden []int `yaml:"classifier_hidden"`

	// Dropout is the dropout probability applied after every hidden layer while training
	Dropout float64 `yaml:"dropout"`

	// Cascade feeds the class probability to the regression head next to the input features
	Cascade bool `yaml:"cascade"`
}

type Model struct {
	Dimensions `yaml:",inline"`
	Topology   `yaml:",inline"`
}

func DefaultModel() Model {
	return Model{
		Dimensions: Dimensions{
			DimInput:   83,
			DimHidden1: 50,
			DimHidden2: 18,
			DimOutput:  2,
		},
		Topology: Topology{
			ClassifierHidden: []int{55, 23, 11, 5},
			Dropout:          0.1,
			Cascade:          true,
		},
	}
}

func (m Model) Validate() error {
	if err := m.Dimensions.Validate(); err != nil {
		return err
	}
	for _, size := range m.ClassifierHidden {
		if size <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("classifier hidden sizes must be positive, got %v", m.ClassifierHidden)}
		}
	}
	if m.Dropout < 0 || m.Dropout >= 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("dropout must be in [0, 1), got %f", m.Dropout)}
	}
	return nil
}

type file struct {
	CruiseMLP Model `yaml:"cruise_mlp"`
}

// Load reads the `cruise_mlp` section of a YAML file on top of DefaultModel.
// An empty path returns the defaults.
func Load(path string) (Model, error) {
	result := file{CruiseMLP: DefaultModel()}
	if path == "" {
		return result.CruiseMLP, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, &ConfigurationError{Path: path, Reason: "cannot read configuration", Err: err}
	}
	if err := yaml.Unmarshal(data, &result); err != nil {
		return Model{}, &ConfigurationError{Path: path, Reason: "invalid yaml", Err: err}
	}
	if err := result.CruiseMLP.Validate(); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return Model{}, err
	}
	return result.CruiseMLP, nil
}
