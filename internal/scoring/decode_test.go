package scoring

import (
	"testing"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFeatureVector(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		want        FeatureVector
		wantInvalid []string
		wantErr     string
	}{
		{name: "numbers", body: `{"a": 1, "b": -0.5, "c": 2e3}`, want: FeatureVector{"a": 1, "b": -0.5, "c": 2000}},
		{name: "empty object", body: ` {} `, want: FeatureVector{}},
		{name: "null value", body: `{"a": null, "b": 1}`, want: FeatureVector{"b": 1}, wantInvalid: []string{"a"}},
		{name: "string and bool", body: `{"z": "1", "m": true, "a": 2}`, want: FeatureVector{"a": 2}, wantInvalid: []string{"m", "z"}},
		{name: "empty body", body: "  ", wantErr: "request body is empty"},
		{name: "array", body: `[1,2]`, wantErr: "JSON object"},
		{name: "null document", body: `null`, wantErr: "JSON object"},
		{name: "malformed", body: `{"a": 1`, wantErr: "JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv, err := DecodeFeatureVector([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, apperrors.CategoryValidation, apperrors.ToAppError(err).Category)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rv.Values)
			assert.Equal(t, tt.wantInvalid, rv.Invalid)
		})
	}
}

func TestScorerVector(t *testing.T) {
	s := newScorer(t, []string{"a", "b"}, []float64{2, -1}, 0)

	tests := []struct {
		name         string
		body         string
		wantCategory apperrors.ErrorCategory
		wantMissing  []string
		wantExtra    []string
	}{
		{name: "valid", body: `{"a": 1, "b": 1}`},
		{name: "extra string field", body: `{"a": 1, "company": "Acme"}`, wantCategory: apperrors.CategorySchema, wantMissing: []string{"b"}, wantExtra: []string{"company"}},
		{name: "null plus extra", body: `{"a": 1, "b": null, "c": 2}`, wantCategory: apperrors.CategorySchema, wantMissing: []string{}, wantExtra: []string{"c"}},
		{name: "missing plus null", body: `{"b": null}`, wantCategory: apperrors.CategorySchema, wantMissing: []string{"a"}, wantExtra: []string{}},
		{name: "keys match, value null", body: `{"a": 1, "b": null}`, wantCategory: apperrors.CategoryValidation},
		{name: "keys match, value string", body: `{"a": "x", "b": 1}`, wantCategory: apperrors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv, err := DecodeFeatureVector([]byte(tt.body))
			require.NoError(t, err)

			fv, err := s.Vector(rv)
			if tt.wantCategory == "" {
				require.NoError(t, err)
				assert.Equal(t, FeatureVector{"a": 1, "b": 1}, fv)
				return
			}

			require.Error(t, err)
			resp := apperrors.NewResponse(err)
			assert.Equal(t, tt.wantCategory, resp.Category)
			if tt.wantCategory == apperrors.CategorySchema {
				require.NotNil(t, resp.MissingFeatures)
				assert.Equal(t, tt.wantMissing, *resp.MissingFeatures)
				assert.Equal(t, tt.wantExtra, *resp.ExtraFeatures)
			}
		})
	}
}

func TestScorerVector_ReportsBadKeys(t *testing.T) {
	s := newScorer(t, []string{"a", "m", "z"}, []float64{1, 1, 1}, 0)

	rv, err := DecodeFeatureVector([]byte(`{"z": null, "a": "x", "m": 1}`))
	require.NoError(t, err)
	_, err = s.Vector(rv)
	require.Error(t, err)

	resp := apperrors.NewResponse(err)
	require.Len(t, resp.Details, 1)
	assert.Contains(t, resp.Details[0], "a z")
}
