package reform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"taxlab-hq/ledger/pkg/catalog"
)

// Coerce decodes a raw request value to the lever's value type. List values
// are reduced to their first element.
func Coerce(lever *catalog.Lever, raw any) (any, error) {
	raw, err := first(raw)
	if err != nil {
		return nil, err
	}

	switch lever.ValueType {
	case catalog.ValueBool:
		return ParseBool(raw)
	case catalog.ValueFloat, catalog.ValueInt:
		f, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		if lever.ValueType == catalog.ValueInt {
			f = math.Round(f)
		}
		return f, nil
	case catalog.ValueEnum, catalog.ValueString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	}
	return nil, fmt.Errorf("%w: unsupported value type %q", ErrInvalidValue, lever.ValueType)
}

// ParseBool decodes a boolean lever value. Only true, false, 1, 0 and
// their string forms are accepted.
func ParseBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case int:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		switch v {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a boolean", ErrInvalidValue, raw)
}

func parseNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidValue, raw)
}

func first(raw any) (any, error) {
	list, ok := raw.([]any)
	if !ok {
		if strs, ok := raw.([]string); ok {
			if len(strs) == 0 {
				return nil, fmt.Errorf("%w: empty list", ErrInvalidValue)
			}
			return strs[0], nil
		}
		return raw, nil
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidValue)
	}
	return list[0], nil
}
