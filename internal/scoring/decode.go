package scoring

import (
	"bytes"
	"encoding/json"
	"sort"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
)

var jsonNull = []byte("null")

// RawVector is a decoded request before its values are checked. Values holds
// every numeric entry; Invalid names the keys whose value was null or not a
// number. Both sets take part in the schema key check.
type RawVector struct {
	Values  FeatureVector
	Invalid []string
}

// Keys returns every key the caller sent, sorted
func (r RawVector) Keys() []string {
	keys := make([]string, 0, len(r.Values)+len(r.Invalid))
	for name := range r.Values {
		keys = append(keys, name)
	}
	keys = append(keys, r.Invalid...)
	sort.Strings(keys)
	return keys
}

// DecodeFeatureVector parses a JSON object of feature values. Only a body
// that is not a JSON object fails here; bad values are kept by name in
// Invalid so that Scorer.Vector can report key mismatches first.
func DecodeFeatureVector(data []byte) (RawVector, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return RawVector{}, apperrors.NewValidationError("request body is empty")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return RawVector{}, apperrors.NewValidationError("request body must be a JSON object of feature values")
	}

	rv := RawVector{Values: make(FeatureVector, len(raw))}
	for name, value := range raw {
		var v float64
		if bytes.Equal(bytes.TrimSpace(value), jsonNull) || json.Unmarshal(value, &v) != nil {
			rv.Invalid = append(rv.Invalid, name)
			continue
		}
		rv.Values[name] = v
	}
	sort.Strings(rv.Invalid)

	return rv, nil
}

// Vector checks rv against the schema. A key mismatch is reported with the
// full missing and extra sets whatever the values are; invalid values are
// reported only once the keys match.
func (s *Scorer) Vector(rv RawVector) (FeatureVector, error) {
	if err := s.checkKeys(rv.Keys()); err != nil {
		return nil, err
	}
	if len(rv.Invalid) > 0 {
		return nil, apperrors.NewValidationError("feature values must be numbers", rv.Invalid)
	}
	return rv.Values, nil
}
