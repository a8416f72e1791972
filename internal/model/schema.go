package model

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultLabelColumn is the target column of the processed dataset
const DefaultLabelColumn = "failed"

// Schema is the fixed, ordered list of feature names a model was trained on.
// It is immutable once built.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema builds a schema from names in training order. Names must be
// non-empty and unique.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("schema has no features")
	}

	s := &Schema{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}

	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("feature %d has an empty name", i)
		}
		if prev, dup := s.index[name]; dup {
			return nil, fmt.Errorf("feature %q appears at positions %d and %d", name, prev, i)
		}
		s.names[i] = name
		s.index[name] = i
	}

	return s, nil
}

// Names returns a copy of the feature names in canonical order
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of features
func (s *Schema) Len() int { return len(s.names) }

// Name returns the feature at position i
func (s *Schema) Name(i int) string { return s.names[i] }

// Index returns the canonical position of name
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Contains reports whether name is a schema feature
func (s *Schema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Equal reports whether both schemas list the same names in the same order
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.names) != len(other.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

// ReadSchemaCSV derives the schema from the header row of a processed
// dataset: every column except label, in file order. Column names are
// trimmed of surrounding whitespace.
func ReadSchemaCSV(r io.Reader, label string) (*Schema, error) {
	if label == "" {
		label = DefaultLabelColumn
	}

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	names := make([]string, 0, len(header))
	foundLabel := false
	for _, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if col == label {
			foundLabel = true
			continue
		}
		names = append(names, col)
	}

	if !foundLabel {
		return nil, fmt.Errorf("label column %q not found in dataset header", label)
	}

	return NewSchema(names)
}

// LoadSchemaCSV opens path and derives the schema from its header
func LoadSchemaCSV(path, label string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadSchemaCSV(f, label)
}
