package database

import (
	"time"

	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/google/uuid"
)

// Prediction sources
const (
	SourceHTTP        = "http"
	SourceHTTPProfile = "http_profile"
	SourceNATS        = "nats"
)

// PredictionRecord is one audited scoring call
type PredictionRecord struct {
	ID                 string             `json:"id" db:"id"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	ModelVersion       string             `json:"model_version" db:"model_version"`
	Source             string             `json:"source" db:"source"`
	FailureProbability float64            `json:"failure_probability" db:"failure_probability"`
	RiskLevel          string             `json:"risk_level" db:"risk_level"`
	TopRiskFactors     []string           `json:"top_risk_factors" db:"top_risk_factors"`
	PositiveSignals    []string           `json:"positive_signals" db:"positive_signals"`
	Features           map[string]float64 `json:"features" db:"features"`
	IPAddress          string             `json:"-" db:"ip_address"`
}

// NewPredictionRecord captures p and the vector it was computed from. The
// stored probability is the rounded wire value.
func NewPredictionRecord(source, ipAddress string, fv scoring.FeatureVector, p *scoring.Prediction) *PredictionRecord {
	features := make(map[string]float64, len(fv))
	for k, v := range fv {
		features[k] = v
	}

	return &PredictionRecord{
		ID:                 uuid.New().String(),
		CreatedAt:          time.Now().UTC(),
		ModelVersion:       p.ModelVersion,
		Source:             source,
		FailureProbability: scoring.Round4(p.Probability),
		RiskLevel:          string(p.Tier),
		TopRiskFactors:     append([]string{}, p.RiskFactors...),
		PositiveSignals:    append([]string{}, p.ProtectiveFactors...),
		Features:           features,
		IPAddress:          ipAddress,
	}
}
