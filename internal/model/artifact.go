package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Artifact is the persisted form of a trained logistic-regression model as
// exported by the offline training pipeline.
type Artifact struct {
	Version  string    `json:"version,omitempty" yaml:"version,omitempty"`
	Label    string    `json:"label,omitempty" yaml:"label,omitempty"`
	Features []string  `json:"features,omitempty" yaml:"features,omitempty"`
	Weights  []float64 `json:"weights" yaml:"weights"`
	Bias     float64   `json:"bias" yaml:"bias"`
}

// artifactFile mirrors Artifact with Bias as a pointer so that an absent
// bias can be told apart from a zero one
type artifactFile struct {
	Version  string    `json:"version" yaml:"version"`
	Label    string    `json:"label" yaml:"label"`
	Features []string  `json:"features" yaml:"features"`
	Weights  []float64 `json:"weights" yaml:"weights"`
	Bias     *float64  `json:"bias" yaml:"bias"`
}

// ParseArtifact decodes an artifact. format is "json" or "yaml". Unknown
// keys are rejected and bias must be present.
func ParseArtifact(data []byte, format string) (*Artifact, error) {
	var f artifactFile

	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode json artifact: %w", err)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode yaml artifact: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported artifact format %q", format)
	}

	if len(f.Weights) == 0 {
		return nil, fmt.Errorf("artifact has no weights")
	}
	if f.Bias == nil {
		return nil, fmt.Errorf("artifact has no bias")
	}

	return &Artifact{
		Version:  f.Version,
		Label:    f.Label,
		Features: f.Features,
		Weights:  f.Weights,
		Bias:     *f.Bias,
	}, nil
}

// ReadArtifact reads the artifact at path. The format follows the file
// extension; an empty Version is replaced by a content digest.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	a, err := ParseArtifact(data, formatFor(path))
	if err != nil {
		return nil, err
	}

	if a.Version == "" {
		sum := sha256.Sum256(data)
		a.Version = hex.EncodeToString(sum[:])[:12]
	}

	return a, nil
}

// WriteArtifact persists a in the format implied by the path extension
func WriteArtifact(path string, a *Artifact) error {
	var (
		data []byte
		err  error
	)

	switch formatFor(path) {
	case "yaml":
		data, err = yaml.Marshal(a)
	default:
		data, err = json.MarshalIndent(a, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
