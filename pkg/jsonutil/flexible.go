// Package jsonutil decodes loosely typed JSON produced by language models.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleBool decodes a boolean that a model may have written as a bool,
// a string ("true", "yes", "1"), or a number. Valid is false when the field
// was absent or null.
type FlexibleBool struct {
	Value bool
	Valid bool
}

func (b *FlexibleBool) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*b = FlexibleBool{}
		return nil
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		*b = FlexibleBool{Value: boolVal, Valid: true}
		return nil
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		switch strings.ToLower(strings.TrimSpace(strVal)) {
		case "true", "yes", "y", "1":
			*b = FlexibleBool{Value: true, Valid: true}
			return nil
		case "false", "no", "n", "0":
			*b = FlexibleBool{Value: false, Valid: true}
			return nil
		}
		return fmt.Errorf("cannot interpret %q as a boolean", strVal)
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		*b = FlexibleBool{Value: numVal != 0, Valid: true}
		return nil
	}

	return fmt.Errorf("cannot interpret %s as a boolean", string(raw))
}

// Or returns the decoded value, or def when the field was absent.
func (b FlexibleBool) Or(def bool) bool {
	if !b.Valid {
		return def
	}
	return b.Value
}

// FlexibleString decodes a string that a model may have written as a number
// or boolean. Null decodes to the empty string.
type FlexibleString string

func (s *FlexibleString) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*s = ""
		return nil
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		*s = FlexibleString(strVal)
		return nil
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			*s = FlexibleString(fmt.Sprintf("%d", int64(numVal)))
		} else {
			*s = FlexibleString(fmt.Sprintf("%g", numVal))
		}
		return nil
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		*s = FlexibleString(fmt.Sprintf("%t", boolVal))
		return nil
	}

	*s = FlexibleString(raw)
	return nil
}
