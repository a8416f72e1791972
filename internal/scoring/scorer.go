package scoring

import (
	"math"
	"sort"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/model"
)

// Scorer runs inference and explanation against a loaded model. It holds no
// per-request state and is safe for concurrent use.
type Scorer struct {
	model *model.Model
}

func NewScorer(m *model.Model) *Scorer {
	return &Scorer{model: m}
}

func (s *Scorer) Model() *model.Model { return s.model }

// Features returns the required feature names in canonical order
func (s *Scorer) Features() []string { return s.model.Schema().Names() }

// Validate checks fv against the schema. Key differences produce a
// *errors.SchemaMismatchError; non-finite values a validation error.
func (s *Scorer) Validate(fv FeatureVector) error {
	keys := make([]string, 0, len(fv))
	for name := range fv {
		keys = append(keys, name)
	}
	if err := s.checkKeys(keys); err != nil {
		return err
	}

	var bad []string
	for name, v := range fv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return apperrors.NewValidationError("feature values must be finite numbers", bad)
	}

	return nil
}

func (s *Scorer) checkKeys(keys []string) error {
	schema := s.model.Schema()

	seen := make(map[string]bool, len(keys))
	var extra []string
	for _, name := range keys {
		seen[name] = true
		if !schema.Contains(name) {
			extra = append(extra, name)
		}
	}

	var missing []string
	for _, name := range schema.Names() {
		if !seen[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 || len(extra) > 0 {
		return apperrors.NewSchemaMismatchError(missing, extra)
	}
	return nil
}

// Predict validates fv and scores it. Nothing is computed for an invalid
// vector.
func (s *Scorer) Predict(fv FeatureVector) (*Prediction, error) {
	if err := s.Validate(fv); err != nil {
		return nil, err
	}

	schema := s.model.Schema()
	contribs := make([]Contribution, schema.Len())
	z := s.model.Bias()
	for i := 0; i < schema.Len(); i++ {
		name := schema.Name(i)
		w := s.model.Weight(i)
		x := fv[name]
		c := w * x
		z += c
		contribs[i] = Contribution{Feature: name, Value: x, Weight: w, Contribution: c}
	}

	p := sigmoid(z)
	risk, protective := rankFactors(contribs)

	return &Prediction{
		Probability:       p,
		LinearScore:       z,
		Tier:              TierFor(p),
		RiskFactors:       risk,
		ProtectiveFactors: protective,
		Contributions:     contribs,
		ModelVersion:      s.model.Version(),
	}, nil
}

// TierFor buckets an unrounded probability
func TierFor(p float64) RiskTier {
	switch {
	case p >= HighRiskThreshold:
		return HighRisk
	case p >= MediumRiskThreshold:
		return MediumRisk
	default:
		return LowRisk
	}
}

// sigmoid never overflows: exp is only taken of a non-positive argument
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// rankFactors splits contributions by sign. Risk factors are positive
// contributions, largest first; protective factors negative ones, most
// negative first. Ties keep schema order.
func rankFactors(contribs []Contribution) (risk, protective []string) {
	pos := make([]Contribution, 0, len(contribs))
	neg := make([]Contribution, 0, len(contribs))
	for _, c := range contribs {
		switch {
		case c.Contribution > 0:
			pos = append(pos, c)
		case c.Contribution < 0:
			neg = append(neg, c)
		}
	}

	sort.SliceStable(pos, func(i, j int) bool { return pos[i].Contribution > pos[j].Contribution })
	sort.SliceStable(neg, func(i, j int) bool { return neg[i].Contribution < neg[j].Contribution })

	return topNames(pos), topNames(neg)
}

func topNames(cs []Contribution) []string {
	n := len(cs)
	if n > MaxFactors {
		n = MaxFactors
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = cs[i].Feature
	}
	return out
}

// Importance ranks every feature by coefficient magnitude, largest first
func (s *Scorer) Importance() []FeatureWeight {
	schema := s.model.Schema()
	out := make([]FeatureWeight, schema.Len())
	for i := range out {
		w := s.model.Weight(i)
		dir := Neutral
		switch {
		case w > 0:
			dir = IncreasesRisk
		case w < 0:
			dir = ReducesRisk
		}
		out[i] = FeatureWeight{Feature: schema.Name(i), Weight: w, Direction: dir}
	}

	sort.SliceStable(out, func(i, j int) bool { return math.Abs(out[i].Weight) > math.Abs(out[j].Weight) })
	return out
}
