// Package scoring calcule les scores RFV (quintiles sur la population) et le segment de chaque client.
package scoring

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"rfv-segments/pkg/models"
	"rfv-segments/pkg/normalize"
)

// Score transforme les agrégats en enregistrements finaux. Deux passes : les chiffres par client
// (avec overrides), puis les quintiles sur toute la population.
func Score(aggs []models.CustomerAggregate, now time.Time) []models.CustomerRFVRecord {
	records := make([]models.CustomerRFVRecord, len(aggs))
	for i, agg := range aggs {
		records[i] = figures(agg, now)
	}

	days := make([]int, len(records))
	counts := make([]int, len(records))
	values := make([]decimal.Decimal, len(records))
	for i, r := range records {
		days[i] = r.DaysSinceLastPurchase
		counts[i] = r.TotalPurchases
		values[i] = r.TotalValue
	}
	sort.Ints(days)
	sort.Ints(counts)
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })

	n := len(records)
	for i := range records {
		r := &records[i]
		o := aggs[i].Overrides

		r.RecencyScore = pick(o.RecencyScore, invert(rankInts(days, r.DaysSinceLastPurchase), n))
		r.FrequencyScore = pick(o.FrequencyScore, quintile(rankInts(counts, r.TotalPurchases), n))
		r.ValueScore = pick(o.ValueScore, quintile(rankDecimals(values, r.TotalValue), n))

		r.Segment, r.SegmentOverridden = Resolve(o.Segment, r.RecencyScore, r.FrequencyScore, r.ValueScore)
	}
	return records
}

// figures calcule dates, totaux et ticket moyen d'un client ; les overrides de la source priment.
func figures(agg models.CustomerAggregate, now time.Time) models.CustomerRFVRecord {
	r := models.CustomerRFVRecord{
		NameKey:           agg.Key,
		Name:              agg.Name,
		Contact:           agg.Contact,
		FirstPurchaseDate: models.SentinelDate,
		LastPurchaseDate:  models.SentinelDate,
		TotalPurchases:    len(agg.Purchases),
		TotalValue:        decimal.Zero,
	}

	trusted := false
	for _, p := range agg.Purchases {
		r.TotalValue = r.TotalValue.Add(p.Amount)
		if !p.DateTrusted {
			continue
		}
		if !trusted || p.Date.Before(r.FirstPurchaseDate) {
			r.FirstPurchaseDate = p.Date
		}
		if !trusted || p.Date.After(r.LastPurchaseDate) {
			r.LastPurchaseDate = p.Date
		}
		trusted = true
	}

	o := agg.Overrides
	// la première date de la source ne peut que reculer la date calculée
	if o.FirstPurchaseDate != nil && trusted && o.FirstPurchaseDate.Before(r.FirstPurchaseDate) {
		r.FirstPurchaseDate = *o.FirstPurchaseDate
	}
	if o.TotalPurchases != nil {
		r.TotalPurchases = *o.TotalPurchases
	}
	if o.TotalValue != nil {
		r.TotalValue = *o.TotalValue
	}
	r.TotalValue = r.TotalValue.Round(2)

	divisor := r.TotalPurchases
	if divisor < 1 {
		divisor = 1
	}
	r.AverageTicket = r.TotalValue.Div(decimal.NewFromInt(int64(divisor))).Round(2)
	if o.AverageTicket != nil && o.AverageTicket.IsPositive() {
		r.AverageTicket = o.AverageTicket.Round(2)
	}

	r.DaysSinceLastPurchase = normalize.DaysBetween(r.LastPurchaseDate, now)
	if o.DaysSinceLastPurchase != nil {
		r.DaysSinceLastPurchase = *o.DaysSinceLastPurchase
	}
	return r
}

// rankInts renvoie le premier index de sorted dont la valeur est ≥ v.
func rankInts(sorted []int, v int) int {
	return sort.SearchInts(sorted, v)
}

func rankDecimals(sorted []decimal.Decimal, v decimal.Decimal) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i].GreaterThanOrEqual(v) })
}

// quintile = ceil(rank/n × 5) borné à [1,5], en arithmétique entière.
func quintile(rank, n int) int {
	if n == 0 {
		return 1
	}
	return clampScore((rank*5 + n - 1) / n)
}

// invert = ceil((1 − rank/n) × 5) : moins de jours ⇒ meilleur score.
func invert(rank, n int) int {
	if n == 0 {
		return 1
	}
	return clampScore(((n-rank)*5 + n - 1) / n)
}

func clampScore(s int) int {
	switch {
	case s < 1:
		return 1
	case s > 5:
		return 5
	}
	return s
}

// ValidScore indique si s est un score RFV (1 à 5).
func ValidScore(s int) bool {
	return s >= 1 && s <= 5
}

// pick : l'override valide gagne, sinon le score calculé.
func pick(override *int, computed int) int {
	if override != nil && ValidScore(*override) {
		return *override
	}
	return computed
}

// Sort ordonne les enregistrements par priorité de segment puis par nom.
func Sort(records []models.CustomerRFVRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := records[i].Segment.Priority(), records[j].Segment.Priority()
		if pi != pj {
			return pi < pj
		}
		return records[i].NameKey < records[j].NameKey
	})
}
