package scoring

import "math"

// FeatureVector maps feature names to values. It must carry exactly the
// model schema's names.
type FeatureVector map[string]float64

type RiskTier string

const (
	LowRisk    RiskTier = "Low Risk"
	MediumRisk RiskTier = "Medium Risk"
	HighRisk   RiskTier = "High Risk"
)

// Tier thresholds; a boundary value belongs to the higher tier
const (
	MediumRiskThreshold = 0.4
	HighRiskThreshold   = 0.7
)

// MaxFactors caps both factor lists
const MaxFactors = 5

type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Prediction is the exact result of one scoring call
type Prediction struct {
	Probability       float64        `json:"probability"`
	LinearScore       float64        `json:"linear_score"`
	Tier              RiskTier       `json:"risk_level"`
	RiskFactors       []string       `json:"top_risk_factors"`
	ProtectiveFactors []string       `json:"positive_signals"`
	Contributions     []Contribution `json:"contributions"`
	ModelVersion      string         `json:"model_version"`
}

// Response is the wire form returned to clients. TopRiskFactors holds only
// positive contributions and PositiveSignals only negative ones, at most
// MaxFactors each, so either list may be shorter or empty.
type Response struct {
	FailureProbability float64        `json:"failure_probability"`
	RiskLevel          RiskTier       `json:"risk_level"`
	TopRiskFactors     []string       `json:"top_risk_factors"`
	PositiveSignals    []string       `json:"positive_signals"`
	LinearScore        *float64       `json:"linear_score,omitempty"`
	Contributions      []Contribution `json:"contributions,omitempty"`
}

// Response shapes p for the wire. detail adds the linear score and the
// per-feature contributions.
func (p *Prediction) Response(detail bool) Response {
	resp := Response{
		FailureProbability: Round4(p.Probability),
		RiskLevel:          p.Tier,
		TopRiskFactors:     p.RiskFactors,
		PositiveSignals:    p.ProtectiveFactors,
	}
	if detail {
		z := p.LinearScore
		resp.LinearScore = &z
		resp.Contributions = p.Contributions
	}
	return resp
}

// Round4 rounds to four decimal places
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

type Direction string

const (
	IncreasesRisk Direction = "increases_risk"
	ReducesRisk   Direction = "reduces_risk"
	Neutral       Direction = "neutral"
)

// FeatureWeight is one entry of the global coefficient ranking
type FeatureWeight struct {
	Feature   string    `json:"feature"`
	Weight    float64   `json:"weight"`
	Direction Direction `json:"direction"`
}
