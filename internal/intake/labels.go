package intake

// Features lists the profile-derived features in dataset column order
var Features = []string{
	"latitude", "longitude", "age_first_funding_year", "age_last_funding_year",
	"age_first_milestone_year", "age_last_milestone_year", "relationships",
	"funding_rounds", "funding_total_usd", "milestones", "avg_participants",
	"is_CA", "is_NY", "is_MA", "is_TX", "is_otherstate",
	"is_software", "is_web", "is_mobile", "is_enterprise", "is_advertising",
	"is_gamesvideo", "is_ecommerce", "is_biotech", "is_consulting", "is_othercategory",
	"has_VC", "has_angel", "has_roundA", "has_roundB", "has_roundC", "has_roundD",
	"is_top500",
}

var displayNames = map[string]string{
	"latitude":                 "Headquarters latitude",
	"longitude":                "Headquarters longitude",
	"age_first_funding_year":   "Early funding access",
	"age_last_funding_year":    "Late funding dependency",
	"age_first_milestone_year": "Early milestones",
	"age_last_milestone_year":  "Delayed milestones",
	"relationships":            "Founder network strength",
	"funding_rounds":           "Number of funding rounds",
	"funding_total_usd":        "Total funding raised",
	"milestones":               "Business milestones",
	"avg_participants":         "Investor participation",
	"is_CA":                    "Based in California",
	"is_NY":                    "Based in New York",
	"is_MA":                    "Based in Massachusetts",
	"is_TX":                    "Based in Texas",
	"is_otherstate":            "Based in another state",
	"is_software":              "Software startup",
	"is_web":                   "Web-based product",
	"is_mobile":                "Mobile product",
	"is_enterprise":            "Enterprise focus",
	"is_advertising":           "Advertising business",
	"is_gamesvideo":            "Games and video",
	"is_ecommerce":             "E-commerce business",
	"is_biotech":               "Biotech venture",
	"is_consulting":            "Consulting business",
	"is_othercategory":         "Other industry",
	"has_VC":                   "VC backing",
	"has_angel":                "Angel funding",
	"has_roundA":               "Series A raised",
	"has_roundB":               "Series B raised",
	"has_roundC":               "Series C raised",
	"has_roundD":               "Series D raised",
	"is_top500":                "Top-500 startup",
}

// DisplayName returns the label front ends show for feature. Unknown
// features are returned unchanged.
func DisplayName(feature string) string {
	if label, ok := displayNames[feature]; ok {
		return label
	}
	return feature
}

// Labels returns display names for the given features
func Labels(features []string) map[string]string {
	out := make(map[string]string, len(features))
	for _, f := range features {
		out[f] = DisplayName(f)
	}
	return out
}
