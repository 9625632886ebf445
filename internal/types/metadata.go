package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Metadata carries operation-specific extras. Known fields are typed; anything
// else lands in Extra and is written back flat, so the JSON shape stays an open
// key-value bag.
type Metadata struct {
	HealthFactor       string
	CollateralRatio    string
	LPTokens           string
	LiquidationPenalty string
	SeizedCollateral   string
	Borrower           string
	BridgeProtocol     string
	DecodedMethod      string
	ConfirmedAt        int64 // Block time in epoch milliseconds
	Unverified         bool  // Amount/token/value are placeholders, not decoded facts

	Extra map[string]interface{}
}

const (
	metaHealthFactor       = "healthFactor"
	metaCollateralRatio    = "collateralRatio"
	metaLPTokens           = "lpTokens"
	metaLiquidationPenalty = "liquidationPenalty"
	metaSeizedCollateral   = "seizedCollateral"
	metaBorrower           = "borrower"
	metaBridgeProtocol     = "bridgeProtocol"
	metaDecodedMethod      = "decodedMethod"
	metaConfirmedAt        = "confirmedAt"
	metaUnverified         = "unverified"
)

func (m *Metadata) stringFields() map[string]*string {
	return map[string]*string{
		metaHealthFactor:       &m.HealthFactor,
		metaCollateralRatio:    &m.CollateralRatio,
		metaLPTokens:           &m.LPTokens,
		metaLiquidationPenalty: &m.LiquidationPenalty,
		metaSeizedCollateral:   &m.SeizedCollateral,
		metaBorrower:           &m.Borrower,
		metaBridgeProtocol:     &m.BridgeProtocol,
		metaDecodedMethod:      &m.DecodedMethod,
	}
}

// MarshalJSON flattens known fields and Extra into one object
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	for key, ptr := range m.stringFields() {
		if *ptr != "" {
			out[key] = *ptr
		}
	}
	if m.ConfirmedAt != 0 {
		out[metaConfirmedAt] = m.ConfirmedAt
	}
	if m.Unverified {
		out[metaUnverified] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits an object into known fields and Extra.
// Known string fields also accept JSON numbers, as older clients wrote them unquoted.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata{}
	known := m.stringFields()

	for key, value := range raw {
		if ptr, ok := known[key]; ok {
			if s, ok := flexString(value); ok {
				*ptr = s
				continue
			}
		}
		switch key {
		case metaConfirmedAt:
			if n, err := strconv.ParseInt(string(bytes.TrimSpace(value)), 10, 64); err == nil {
				m.ConfirmedAt = n
				continue
			}
		case metaUnverified:
			var b bool
			if err := json.Unmarshal(value, &b); err == nil {
				m.Unverified = b
				continue
			}
		}

		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if m.Extra == nil {
			m.Extra = make(map[string]interface{})
		}
		m.Extra[key] = v
	}
	return nil
}

// flexString accepts a JSON string or a JSON number
func flexString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), true
	}
	return "", false
}

// Clone returns a deep copy
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	if m.Extra != nil {
		c.Extra = make(map[string]interface{}, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Merge overlays the set fields of o onto a copy of m
func (m *Metadata) Merge(o *Metadata) *Metadata {
	if o == nil {
		return m.Clone()
	}
	if m == nil {
		return o.Clone()
	}
	merged := m.Clone()
	mergedFields := merged.stringFields()
	for key, ptr := range o.stringFields() {
		if *ptr != "" {
			*mergedFields[key] = *ptr
		}
	}
	if o.ConfirmedAt != 0 {
		merged.ConfirmedAt = o.ConfirmedAt
	}
	if o.Unverified {
		merged.Unverified = true
	}
	for k, v := range o.Extra {
		if merged.Extra == nil {
			merged.Extra = make(map[string]interface{})
		}
		merged.Extra[k] = v
	}
	return merged
}
