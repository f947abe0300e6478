// Package aggregate regroupe les lignes normalisées par client (clé = nom en minuscules).
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rfv-segments/pkg/models"
	"rfv-segments/pkg/normalize"
)

// Aggregate consomme toutes les lignes et renvoie un agrégat par client distinct, dans l'ordre
// de première apparition, avec les compteurs du run. Une ligne sans nom est ignorée ; une date
// illisible ou un montant nul sont comptés mais la ligne reste agrégée.
func Aggregate(rows []models.RawRow, mapping models.ColumnMapping, now time.Time) ([]models.CustomerAggregate, models.ProcessStats) {
	stats := models.ProcessStats{TotalRows: len(rows)}
	index := make(map[string]int)
	var out []models.CustomerAggregate

	for i, row := range rows {
		key := normalize.NameKey(normalize.CellString(cell(row, mapping, models.FieldCustomerName)))
		if key == "" {
			stats.SkippedNoName++
			continue
		}

		date, trusted := resolveDate(row, mapping, now)
		if !trusted {
			stats.SkippedNoDate++
			zap.L().Debug("aggregate: unparsable date, using sentinel",
				zap.Int("row", i), zap.String("customer", key))
		}

		amount := resolveAmount(row, mapping)
		if amount.IsZero() {
			stats.SkippedZeroAmount++
		}

		pos, seen := index[key]
		if !seen {
			pos = len(out)
			index[key] = pos
			out = append(out, models.CustomerAggregate{Key: key, Name: normalize.DisplayName(key)})
		}
		agg := &out[pos]
		agg.Purchases = append(agg.Purchases, models.Purchase{Date: date, Amount: amount, DateTrusted: trusted})
		mergeContact(&agg.Contact, row, mapping)
		mergeOverrides(&agg.Overrides, row, mapping)
	}

	stats.UniqueCustomers = len(out)
	return out, stats
}

func cell(row models.RawRow, mapping models.ColumnMapping, f models.Field) any {
	if !mapping.Has(f) {
		return nil
	}
	return row[mapping.Get(f)]
}

// resolveDate : purchase_date si mappé, sinon now − days_since_last_purchase (exports pré-agrégés).
func resolveDate(row models.RawRow, mapping models.ColumnMapping, now time.Time) (time.Time, bool) {
	if mapping.Has(models.FieldPurchaseDate) {
		return normalize.ParseDate(cell(row, mapping, models.FieldPurchaseDate))
	}
	if days, ok := normalize.ParseCount(cell(row, mapping, models.FieldDaysSinceLastPurchase)); ok {
		return models.DateOnly(now).AddDate(0, 0, -days), true
	}
	return models.SentinelDate, false
}

// resolveAmount : amount si mappé, sinon total_value.
func resolveAmount(row models.RawRow, mapping models.ColumnMapping) decimal.Decimal {
	f := models.FieldAmount
	if !mapping.Has(f) {
		f = models.FieldTotalValue
	}
	amount, _ := normalize.ParseAmount(cell(row, mapping, f))
	return amount
}

func mergeContact(c *models.Contact, row models.RawRow, mapping models.ColumnMapping) {
	set := func(dst *string, f models.Field) {
		if v := normalize.CellString(cell(row, mapping, f)); v != "" {
			*dst = v
		}
	}
	set(&c.Phone, models.FieldPhone)
	set(&c.WhatsApp, models.FieldWhatsApp)
	set(&c.Email, models.FieldEmail)
	set(&c.CPF, models.FieldCPF)
	set(&c.RecordID, models.FieldRecordID)
}

func mergeOverrides(o *models.Overrides, row models.RawRow, mapping models.ColumnMapping) {
	setInt := func(dst **int, f models.Field) {
		if n, ok := normalize.ParseCount(cell(row, mapping, f)); ok {
			*dst = &n
		}
	}
	setDecimal := func(dst **decimal.Decimal, f models.Field) {
		v := cell(row, mapping, f)
		if normalize.CellString(v) == "" {
			return
		}
		if d, ok := normalize.ParseAmount(v); ok {
			*dst = &d
		}
	}
	if mapping.Has(models.FieldFirstPurchaseDate) {
		if d, ok := normalize.ParseDate(cell(row, mapping, models.FieldFirstPurchaseDate)); ok {
			o.FirstPurchaseDate = &d
		}
	}
	setInt(&o.TotalPurchases, models.FieldTotalPurchases)
	setDecimal(&o.TotalValue, models.FieldTotalValue)
	setDecimal(&o.AverageTicket, models.FieldAverageTicket)
	setInt(&o.DaysSinceLastPurchase, models.FieldDaysSinceLastPurchase)
	setInt(&o.RecencyScore, models.FieldRecencyScore)
	setInt(&o.FrequencyScore, models.FieldFrequencyScore)
	setInt(&o.ValueScore, models.FieldValueScore)
	if s := normalize.CellString(cell(row, mapping, models.FieldSegmentOverride)); s != "" {
		o.Segment = s
	}
}
