package transform

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CardProperties flattens a card's raw custom property values into
// property-ID → string values. Keys arrive as "id_<propertyID>"; values
// are scalars for select properties and arrays for multi-selects. Null
// and empty values drop out.
func CardProperties(raw map[string]json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	out := map[string][]string{}
	for key, value := range raw {
		propID := strings.TrimPrefix(key, "id_")
		values := propertyValues(value)
		if len(values) > 0 {
			out[propID] = values
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func propertyValues(raw json.RawMessage) []string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var values []string
		for _, item := range list {
			if v := scalarValue(item); v != "" {
				values = append(values, v)
			}
		}
		return values
	}
	if v := scalarValue(raw); v != "" {
		return []string{v}
	}
	return nil
}

func scalarValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}
