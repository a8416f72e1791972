package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/intake"
	"github.com/ZanzyTHEbar/runway/internal/model"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func writeModel(t *testing.T, features []string, weights []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, model.WriteArtifact(path, &model.Artifact{
		Version:  "v-test",
		Features: features,
		Weights:  weights,
	}))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"runway"}, args...))
	return out.String(), err
}

func TestFeatures(t *testing.T) {
	modelPath := writeModel(t, []string{"relationships", "is_CA"}, []float64{-0.5, 1})

	out, err := run(t, "", "--model", modelPath, "--format", "json", "features")
	require.NoError(t, err)

	var items []featureItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Equal(t, []featureItem{
		{Name: "relationships", Label: "Founder network strength"},
		{Name: "is_CA", Label: "Based in California"},
	}, items)

	out, err = run(t, "", "--model", modelPath, "features")
	require.NoError(t, err)
	assert.Contains(t, out, "relationships")
	assert.Contains(t, out, "Based in California")
}

func TestInspect(t *testing.T) {
	modelPath := writeModel(t, []string{"a", "b"}, []float64{2, -1})

	out, err := run(t, "", "--model", modelPath, "--format", "yaml", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "version: v-test")
	assert.Contains(t, out, "feature_count: 2")
	assert.Contains(t, out, "feature: b")
}

func TestImportance(t *testing.T) {
	modelPath := writeModel(t, []string{"a", "b", "c"}, []float64{0.5, -3, 0})

	out, err := run(t, "", "--model", modelPath, "importance", "--top", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "RANK")
	assert.Contains(t, lines[1], "b")
	assert.Contains(t, lines[1], "reduces_risk")
	assert.Contains(t, lines[2], "increases_risk")

	out, err = run(t, "", "--model", modelPath, "--format", "json", "imp", "--top", "0")
	require.NoError(t, err)
	var items []importanceItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 3)
	assert.Equal(t, "neutral", string(items[2].Direction))
}

func TestScore(t *testing.T) {
	modelPath := writeModel(t, []string{"a", "b"}, []float64{2, -1})

	tests := []struct {
		name  string
		input string
		stdin string
		args  []string
	}{
		{name: "json file", input: writeFile(t, "v.json", `{"a": 1, "b": 1}`)},
		{name: "yaml file", input: writeFile(t, "v.yaml", "a: 1\nb: 1\n")},
		{name: "stdin", input: "-", stdin: `{"a": 1, "b": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.stdin, "--model", modelPath, "--format", "json", "score", "-i", tt.input)
			require.NoError(t, err)

			var res scoreResult
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, 0.7311, res.FailureProbability)
			assert.Equal(t, "High Risk", string(res.RiskLevel))
			assert.Equal(t, []string{"a"}, res.TopRiskFactors)
			assert.Equal(t, []string{"b"}, res.PositiveSignals)
			assert.Nil(t, res.LinearScore)
		})
	}
}

func TestScore_TextAndDetail(t *testing.T) {
	modelPath := writeModel(t, []string{"a", "b"}, []float64{2, -1})
	input := writeFile(t, "v.json", `{"a": 1, "b": 1}`)

	out, err := run(t, "", "--model", modelPath, "score", "-i", input, "--detail")
	require.NoError(t, err)
	assert.Contains(t, out, "Failure probability: 73.11%")
	assert.Contains(t, out, "High Risk")
	assert.Contains(t, out, "Linear score:        +1.0000")
	assert.Contains(t, out, "CONTRIBUTION")
}

func TestScore_Errors(t *testing.T) {
	modelPath := writeModel(t, []string{"a", "b"}, []float64{2, -1})

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "schema mismatch", input: writeFile(t, "m.json", `{"a": 1, "c": 2}`), wantErr: "missing: [b], extra: [c]"},
		{name: "null value", input: writeFile(t, "n.yaml", "a: 1\nb: null\n"), wantErr: "must be numbers"},
		{name: "string value", input: writeFile(t, "s.json", `{"a": 1, "b": "x"}`), wantErr: "must be numbers"},
		{name: "extra string field", input: writeFile(t, "e.yaml", "a: 1\nname: Acme\n"), wantErr: "missing: [b], extra: [name]"},
		{name: "null and extra", input: writeFile(t, "ne.json", `{"a": 1, "b": null, "c": 2}`), wantErr: "missing: [], extra: [c]"},
		{name: "missing file", input: filepath.Join(t.TempDir(), "none.json"), wantErr: "reading input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", "--model", modelPath, "score", "-i", tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScore_Profile(t *testing.T) {
	modelPath := writeModel(t, intake.Features, make([]float64, len(intake.Features)))

	input := writeFile(t, "p.yaml", "state_code: NY\ncategory: biotech\nfunding_types: [angel]\nrelationships: 4\n")
	out, err := run(t, "", "--model", modelPath, "--format", "yaml", "score", "-i", input, "--profile")
	require.NoError(t, err)
	assert.Contains(t, out, "risk_level: Medium Risk")
	assert.Contains(t, out, "failure_probability: 0.5")

	bad := writeFile(t, "bad.yaml", "state_code: NY\nvaluation: 10\n")
	_, err = run(t, "", "--model", modelPath, "score", "-i", bad, "--profile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid startup profile")
}

func TestGlobalFlagErrors(t *testing.T) {
	modelPath := writeModel(t, []string{"a"}, []float64{1})

	_, err := run(t, "", "--model", modelPath, "--format", "xml", "features")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, err = run(t, "", "--model", filepath.Join(t.TempDir(), "none.json"), "features")
	require.Error(t, err)
	assert.True(t, apperrors.IsArtifactLoad(err))
}
