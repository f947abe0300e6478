package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rfv-segments/pkg/models"
)

// Pivot des années à 2 chiffres : > 50 ⇒ 19xx, sinon 20xx.
const twoDigitYearPivot = 50

// Dernier numéro de série valide : 9999-12-31.
const maxSerial = 2958465

// ParseDate convertit une cellule en date calendaire.
// Accepte un numéro de série tableur (système 1900), un time.Time, ou une chaîne
// "a-b-c" / "a/b/c" / "a.b.c". En cas d'échec : (models.SentinelDate, false). Ne panique jamais.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return models.SentinelDate, false
	case time.Time:
		if t.IsZero() {
			return models.SentinelDate, false
		}
		return models.DateOnly(t), true
	case *time.Time:
		if t == nil {
			return models.SentinelDate, false
		}
		return ParseDate(*t)
	case string:
		return parseDateString(t)
	}
	if f, ok := asFloat(v); ok {
		return parseSerial(f)
	}
	return models.SentinelDate, false
}

// parseSerial interprète un numéro de série Excel (époque 1900).
func parseSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 1 || serial >= maxSerial+1 {
		return models.SentinelDate, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return models.SentinelDate, false
	}
	return models.DateOnly(t), true
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	// heure éventuelle : "15/01/2024 10:30", "2024-01-15T10:30:00Z"
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return models.SentinelDate, false
	}

	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	if len(parts) != 3 {
		return models.SentinelDate, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return models.SentinelDate, false
		}
		nums[i] = n
	}

	var year, month, day int
	switch {
	case len(parts[0]) == 4: // ISO année-mois-jour
		year, month, day = nums[0], nums[1], nums[2]
	case len(parts[2]) == 4: // jour-mois-année
		day, month, year = nums[0], nums[1], nums[2]
	case len(parts[2]) == 2: // jour-mois-année sur 2 chiffres
		day, month, year = nums[0], nums[1], expandYear(nums[2])
	default:
		return models.SentinelDate, false
	}
	return buildDate(year, month, day)
}

func expandYear(yy int) int {
	if yy > twoDigitYearPivot {
		return 1900 + yy
	}
	return 2000 + yy
}

// buildDate refuse les dates qui débordent (31/02 etc.).
func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return models.SentinelDate, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return models.SentinelDate, false
	}
	return t, true
}

// DaysBetween renvoie le nombre de jours calendaires entiers de from à to, borné à 0.
func DaysBetween(from, to time.Time) int {
	d := int(models.DateOnly(to).Sub(models.DateOnly(from)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
