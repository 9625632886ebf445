package types

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Metadata survives a marshal/unmarshal cycle with arbitrary free-form keys
func TestMetadataRoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("extra keys and known fields round-trip", prop.ForAll(
		func(healthFactor string, key string, value string) bool {
			if key == "" || isKnownMetadataKey(key) {
				return true
			}
			md := Metadata{
				HealthFactor: healthFactor,
				Extra:        map[string]interface{}{key: value},
			}
			data, err := json.Marshal(md)
			if err != nil {
				return false
			}
			var back Metadata
			if err := json.Unmarshal(data, &back); err != nil {
				return false
			}
			return back.HealthFactor == healthFactor && back.Extra[key] == value
		},
		gen.AlphaString(),
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func isKnownMetadataKey(key string) bool {
	var md Metadata
	if _, ok := md.stringFields()[key]; ok {
		return true
	}
	return key == metaConfirmedAt || key == metaUnverified
}
