package model

import (
	"fmt"
	"log/slog"
	"math"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
)

// Model is a loaded logistic-regression classifier: one weight per schema
// feature plus a bias. It is read-only after construction and safe to share
// between goroutines.
type Model struct {
	schema  *Schema
	weights []float64
	bias    float64
	version string
}

// New validates and assembles a model
func New(schema *Schema, weights []float64, bias float64, version string) (*Model, error) {
	if schema == nil {
		return nil, fmt.Errorf("model requires a schema")
	}
	if len(weights) != schema.Len() {
		return nil, fmt.Errorf("model has %d weights but schema has %d features", len(weights), schema.Len())
	}
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight for %q is not finite", schema.Name(i))
		}
	}
	if math.IsNaN(bias) || math.IsInf(bias, 0) {
		return nil, fmt.Errorf("bias is not finite")
	}

	w := make([]float64, len(weights))
	copy(w, weights)

	return &Model{schema: schema, weights: w, bias: bias, version: version}, nil
}

// Schema returns the model's feature schema
func (m *Model) Schema() *Schema { return m.schema }

// Weight returns the coefficient of the feature at position i
func (m *Model) Weight(i int) float64 { return m.weights[i] }

// Weights returns a copy of the coefficients in schema order
func (m *Model) Weights() []float64 {
	out := make([]float64, len(m.weights))
	copy(out, m.weights)
	return out
}

// Bias returns the intercept
func (m *Model) Bias() float64 { return m.bias }

// Version identifies the artifact the model was loaded from
func (m *Model) Version() string { return m.version }

// LoadOptions locate the offline artifacts
type LoadOptions struct {
	ArtifactPath string
	// DatasetPath is the processed dataset whose header fixes the feature
	// order. Optional when the artifact lists its features.
	DatasetPath string
	LabelColumn string
}

// Load reads the artifact and schema once. Every failure is returned as an
// *errors.ArtifactLoadError; callers must treat it as fatal.
func Load(opts LoadOptions) (*Model, error) {
	if opts.ArtifactPath == "" {
		return nil, apperrors.NewArtifactLoadError("", "model artifact path is not configured", nil)
	}

	artifact, err := ReadArtifact(opts.ArtifactPath)
	if err != nil {
		return nil, apperrors.NewArtifactLoadError(opts.ArtifactPath, "failed to load model artifact", err)
	}

	label := opts.LabelColumn
	if label == "" {
		label = artifact.Label
	}

	var schema *Schema
	switch {
	case opts.DatasetPath != "":
		schema, err = LoadSchemaCSV(opts.DatasetPath, label)
		if err != nil {
			return nil, apperrors.NewArtifactLoadError(opts.DatasetPath, "failed to derive feature schema", err)
		}
		if len(artifact.Features) > 0 {
			declared, err := NewSchema(artifact.Features)
			if err != nil {
				return nil, apperrors.NewArtifactLoadError(opts.ArtifactPath, "artifact feature list is invalid", err)
			}
			if !schema.Equal(declared) {
				return nil, apperrors.NewArtifactLoadError(opts.ArtifactPath,
					"artifact features do not match dataset schema", fmt.Errorf("dataset %v, artifact %v", schema.Names(), declared.Names()))
			}
		}
	case len(artifact.Features) > 0:
		schema, err = NewSchema(artifact.Features)
		if err != nil {
			return nil, apperrors.NewArtifactLoadError(opts.ArtifactPath, "artifact feature list is invalid", err)
		}
	default:
		return nil, apperrors.NewArtifactLoadError(opts.ArtifactPath, "no feature schema available", fmt.Errorf("artifact lists no features and no dataset is configured"))
	}

	m, err := New(schema, artifact.Weights, artifact.Bias, artifact.Version)
	if err != nil {
		return nil, apperrors.NewArtifactLoadError(opts.ArtifactPath, "model is inconsistent with schema", err)
	}

	slog.Info("Model loaded",
		"artifact", opts.ArtifactPath,
		"dataset", opts.DatasetPath,
		"version", m.Version(),
		"features", schema.Len())

	return m, nil
}
