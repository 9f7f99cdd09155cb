package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Coefs is a coefficient vector. Non-finite entries, which saturated
// persistence terms produce, are encoded in JSON as "Inf", "-Inf" or "NaN".
type Coefs []float64

func (c Coefs) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	out := make([]any, len(c))
	for i, v := range c {
		switch {
		case math.IsInf(v, 1):
			out[i] = "Inf"
		case math.IsInf(v, -1):
			out[i] = "-Inf"
		case math.IsNaN(v):
			out[i] = "NaN"
		default:
			out[i] = v
		}
	}
	return json.Marshal(out)
}

func (c *Coefs) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*c = nil
		return nil
	}
	out := make(Coefs, len(raw))
	for i, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("coefficient %d: %w", i, err)
			}
			out[i] = v
			continue
		}
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return fmt.Errorf("coefficient %d: %w", i, err)
		}
	}
	*c = out
	return nil
}
