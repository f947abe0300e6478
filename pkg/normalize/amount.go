package normalize

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var maxCount = decimal.NewFromInt(math.MaxInt32)

// ParseAmount convertit une cellule en montant décimal ≥ 0.
// Le booléen vaut false si la valeur était illisible ou négative (ramenée à zéro).
//
// Séparateurs : si "." et "," coexistent, le dernier rencontré est le séparateur décimal
// ("1.234,56" et "1,234.56" donnent 1234.56). Virgule seule : décimale si suivie d'exactement
// deux chiffres, séparateur de milliers sinon. Plusieurs points seuls : séparateurs de milliers.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return clamp(t, true)
	case string:
		return parseAmountString(t)
	}
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return clamp(decimal.NewFromFloat(f), true)
}

func clamp(d decimal.Decimal, ok bool) (decimal.Decimal, bool) {
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, ok
}

func parseAmountString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}

	// on ne garde que chiffres, séparateurs et signe (R$, $, €, espaces insécables…)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			negative = true
		}
	}
	num := b.String()
	if num == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		if len(num)-lastComma-1 == 2 {
			num = strings.ReplaceAll(num[:lastComma], ",", "") + "." + num[lastComma+1:]
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case strings.Count(num, ".") > 1:
		num = strings.ReplaceAll(num, ".", "")
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	if negative && !d.IsZero() {
		return decimal.Zero, false
	}
	return d, true
}

// ParseCount convertit une cellule en entier ≥ 0 (partie entière du montant).
// Au-delà de math.MaxInt32 la valeur est refusée.
func ParseCount(v any) (int, bool) {
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return 0, false
	}
	d, ok := ParseAmount(v)
	if !ok || d.GreaterThan(maxCount) {
		return 0, false
	}
	return int(d.IntPart()), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
