// Package intake turns a raw startup profile, as collected by a form, into
// the model's feature vector. Categorical flags are derived from the input
// so every client encodes them the same way.
package intake

import (
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
)

// States with a dedicated flag; anything else is is_otherstate
var States = []string{"CA", "NY", "MA", "TX"}

// Categories with a dedicated flag; anything else is is_othercategory
var Categories = []string{
	"software", "web", "mobile", "enterprise", "advertising",
	"gamesvideo", "ecommerce", "biotech", "consulting",
}

// FundingTypes maps accepted funding_types entries to their flag
var FundingTypes = map[string]string{
	"vc":     "has_VC",
	"angel":  "has_angel",
	"rounda": "has_roundA",
	"roundb": "has_roundB",
	"roundc": "has_roundC",
	"roundd": "has_roundD",
}

// Profile is the user-facing description of a startup
type Profile struct {
	Latitude              float64  `json:"latitude" yaml:"latitude"`
	Longitude             float64  `json:"longitude" yaml:"longitude"`
	AgeFirstFundingYear   float64  `json:"age_first_funding_year" yaml:"age_first_funding_year"`
	AgeLastFundingYear    float64  `json:"age_last_funding_year" yaml:"age_last_funding_year"`
	AgeFirstMilestoneYear float64  `json:"age_first_milestone_year" yaml:"age_first_milestone_year"`
	AgeLastMilestoneYear  float64  `json:"age_last_milestone_year" yaml:"age_last_milestone_year"`
	Relationships         float64  `json:"relationships" yaml:"relationships"`
	FundingRounds         float64  `json:"funding_rounds" yaml:"funding_rounds"`
	FundingTotalUSD       float64  `json:"funding_total_usd" yaml:"funding_total_usd"`
	Milestones            float64  `json:"milestones" yaml:"milestones"`
	AvgParticipants       float64  `json:"avg_participants" yaml:"avg_participants"`
	StateCode             string   `json:"state_code" yaml:"state_code"`
	Category              string   `json:"category" yaml:"category"`
	FundingTypes          []string `json:"funding_types" yaml:"funding_types"`
	Top500                bool     `json:"is_top500" yaml:"is_top500"`
}

// Vector encodes p as a complete feature vector. Exactly one state flag and
// one category flag are set.
func (p Profile) Vector() (scoring.FeatureVector, error) {
	fv := scoring.FeatureVector{
		"latitude":                 p.Latitude,
		"longitude":                p.Longitude,
		"age_first_funding_year":   p.AgeFirstFundingYear,
		"age_last_funding_year":    p.AgeLastFundingYear,
		"age_first_milestone_year": p.AgeFirstMilestoneYear,
		"age_last_milestone_year":  p.AgeLastMilestoneYear,
		"relationships":            p.Relationships,
		"funding_rounds":           p.FundingRounds,
		"funding_total_usd":        p.FundingTotalUSD,
		"milestones":               p.Milestones,
		"avg_participants":         p.AvgParticipants,
	}

	var nonFinite []string
	for name, v := range fv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nonFinite = append(nonFinite, name)
		}
	}
	if len(nonFinite) > 0 {
		sort.Strings(nonFinite)
		return nil, apperrors.NewValidationError("profile metrics must be finite numbers", nonFinite)
	}

	state := strings.ToUpper(strings.TrimSpace(p.StateCode))
	for _, s := range States {
		fv["is_"+s] = 0
	}
	fv["is_otherstate"] = 0
	if contains(States, state) {
		fv["is_"+state] = 1
	} else {
		fv["is_otherstate"] = 1
	}

	category := strings.ToLower(strings.TrimSpace(p.Category))
	for _, c := range Categories {
		fv["is_"+c] = 0
	}
	fv["is_othercategory"] = 0
	if contains(Categories, category) {
		fv["is_"+category] = 1
	} else {
		fv["is_othercategory"] = 1
	}

	for _, flag := range FundingTypes {
		fv[flag] = 0
	}
	var unknown []string
	for _, ft := range p.FundingTypes {
		flag, ok := FundingTypes[strings.ToLower(strings.TrimSpace(ft))]
		if !ok {
			unknown = append(unknown, ft)
			continue
		}
		fv[flag] = 1
	}
	if len(unknown) > 0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown funding types: %s", strings.Join(unknown, ", ")),
			"accepted: vc, angel, roundA, roundB, roundC, roundD")
	}

	fv["is_top500"] = boolFlag(p.Top500)

	return fv, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func boolFlag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
