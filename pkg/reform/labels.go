package reform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"taxlab-hq/ledger/pkg/catalog"
)

var currencySymbols = map[string]string{
	"currency-GBP": "£",
	"currency-USD": "$",
	"USD":          "$",
}

var periodSuffixes = map[string]string{
	"year":  "/year",
	"month": "/month",
	"week":  "/week",
}

// Label describes setting lever to value, e.g. "Set basic rate to 21.0%".
func Label(lever *catalog.Lever, value any) string {
	lower := uncapitalise(lever.Label)
	switch {
	case lever.Kind == catalog.KindAbolition:
		return "Abolish " + strings.Join(lever.Variables, ", ")
	case lever.ValueType == catalog.ValueBool:
		if b, _ := value.(bool); b {
			return lever.Label
		}
		return "Revoke " + lower
	case lever.ValueType == catalog.ValueEnum || lever.ValueType == catalog.ValueString:
		return fmt.Sprintf("Set %s to %v", lower, value)
	}

	f, ok := value.(float64)
	if !ok {
		return fmt.Sprintf("Set %s to %v", lower, value)
	}
	if lever.Unit == "/1" {
		return fmt.Sprintf("Set %s to %.1f%%", lower, f*100)
	}
	return fmt.Sprintf("Set %s to %s%s%s", lower, currencySymbols[lever.Unit], thousands(f, 2), periodSuffixes[lever.Period])
}

// Summary describes the change from the lever's current value, e.g.
// "Increase Basic rate from 20% to 21%".
func Summary(lever *catalog.Lever, value any) string {
	if lever.ValueType != catalog.ValueFloat && lever.ValueType != catalog.ValueInt {
		return lever.Label
	}
	newValue, ok := value.(float64)
	current, hasCurrent := lever.NumericValue()
	if !ok || !hasCurrent {
		return lever.Label
	}
	change := "Decrease"
	if newValue > current {
		change = "Increase"
	}
	return fmt.Sprintf("%s %s from %s to %s", change, lever.Label, formatValue(lever, current), formatValue(lever, newValue))
}

func formatValue(lever *catalog.Lever, v float64) string {
	if lever.Unit == "/1" {
		return strconv.FormatFloat(math.Round(v*10000)/100, 'f', -1, 64) + "%"
	}
	if symbol, ok := currencySymbols[lever.Unit]; ok {
		s := symbol + strconv.FormatFloat(v, 'f', -1, 64)
		if lever.Period != "" {
			s += "/" + lever.Period
		}
		return s
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// thousands formats v with the given decimals and comma thousands separators.
func thousands(v float64, decimals int) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func uncapitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
