package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rfv-segments/pkg/models"
)

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

var txMapping = models.ColumnMapping{
	models.FieldCustomerName: "Cliente",
	models.FieldPurchaseDate: "Data",
	models.FieldAmount:       "Valor",
	models.FieldPhone:        "Telefone",
}

func TestAggregate_CaseInsensitiveName(t *testing.T) {
	rows := []models.RawRow{
		{"Cliente": "Maria Silva", "Data": "10/01/2024", "Valor": "100,00"},
		{"Cliente": "MARIA SILVA", "Data": "20/02/2024", "Valor": "50,50"},
	}
	aggs, stats := Aggregate(rows, txMapping, now)
	if len(aggs) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(aggs))
	}
	if n := len(aggs[0].Purchases); n != 2 {
		t.Fatalf("got %d purchases, want 2", n)
	}
	if aggs[0].Key != "maria silva" || aggs[0].Name != "Maria Silva" {
		t.Fatalf("got key=%q name=%q", aggs[0].Key, aggs[0].Name)
	}
	if stats.TotalRows != 2 || stats.UniqueCustomers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAggregate_InvalidDateStillCounted(t *testing.T) {
	rows := []models.RawRow{
		{"Cliente": "Ana", "Data": "invalid", "Valor": "80"},
		{"Cliente": "Ana", "Data": "05/02/2024", "Valor": "20"},
	}
	aggs, stats := Aggregate(rows, txMapping, now)
	if stats.SkippedNoDate != 1 {
		t.Fatalf("got skipped_no_date=%d, want 1", stats.SkippedNoDate)
	}
	total := decimal.Zero
	for _, p := range aggs[0].Purchases {
		total = total.Add(p.Amount)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("got total %s, want 100", total)
	}
	if aggs[0].Purchases[0].DateTrusted || !aggs[0].Purchases[0].Date.Equal(models.SentinelDate) {
		t.Fatalf("expected sentinel date, got %+v", aggs[0].Purchases[0])
	}
}

func TestAggregate_SkipCounters(t *testing.T) {
	rows := []models.RawRow{
		{"Cliente": "  ", "Data": "01/01/2024", "Valor": "10"},
		{"Data": "01/01/2024", "Valor": "10"},
		{"Cliente": "Beto", "Data": "01/01/2024", "Valor": "0"},
		{"Cliente": "Beto", "Data": "01/01/2024", "Valor": "abc"},
	}
	aggs, stats := Aggregate(rows, txMapping, now)
	if stats.SkippedNoName != 2 || stats.SkippedZeroAmount != 2 || stats.TotalRows != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(aggs) != 1 || len(aggs[0].Purchases) != 2 {
		t.Fatalf("zero-amount rows must stay aggregated: %+v", aggs)
	}
}

func TestAggregate_FirstSeenOrderAndLastWriteWins(t *testing.T) {
	rows := []models.RawRow{
		{"Cliente": "Zeca", "Data": "01/01/2024", "Valor": "10", "Telefone": "111"},
		{"Cliente": "Ana", "Data": "01/01/2024", "Valor": "10"},
		{"Cliente": "zeca", "Data": "02/01/2024", "Valor": "10", "Telefone": "222"},
		{"Cliente": "ZECA", "Data": "03/01/2024", "Valor": "10", "Telefone": ""},
	}
	aggs, _ := Aggregate(rows, txMapping, now)
	if aggs[0].Key != "zeca" || aggs[1].Key != "ana" {
		t.Fatalf("unexpected order: %q, %q", aggs[0].Key, aggs[1].Key)
	}
	if aggs[0].Phone != "222" {
		t.Fatalf("got phone %q, want 222", aggs[0].Phone)
	}
}

func TestAggregate_PreAggregatedExport(t *testing.T) {
	mapping := models.ColumnMapping{
		models.FieldCustomerName:          "Cliente",
		models.FieldDaysSinceLastPurchase: "Dias",
		models.FieldTotalValue:            "Total",
		models.FieldTotalPurchases:        "Compras",
		models.FieldRecencyScore:          "R",
		models.FieldSegmentOverride:       "Segmento",
	}
	rows := []models.RawRow{
		{"Cliente": "Carla", "Dias": 10.0, "Total": "1.500,00", "Compras": "7", "R": "5", "Segmento": "Campeões"},
	}
	aggs, stats := Aggregate(rows, mapping, now)
	if stats.SkippedNoDate != 0 {
		t.Fatalf("derived date should be trusted: %+v", stats)
	}
	p := aggs[0].Purchases[0]
	if want := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC); !p.Date.Equal(want) {
		t.Fatalf("got date %v, want %v", p.Date, want)
	}
	if !p.Amount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("got amount %s, want 1500", p.Amount)
	}
	o := aggs[0].Overrides
	if o.TotalPurchases == nil || *o.TotalPurchases != 7 {
		t.Fatalf("total_purchases override: %v", o.TotalPurchases)
	}
	if o.RecencyScore == nil || *o.RecencyScore != 5 {
		t.Fatalf("recency override: %v", o.RecencyScore)
	}
	if o.DaysSinceLastPurchase == nil || *o.DaysSinceLastPurchase != 10 {
		t.Fatalf("days override: %v", o.DaysSinceLastPurchase)
	}
	if o.Segment != "Campeões" {
		t.Fatalf("segment override: %q", o.Segment)
	}
	if o.FrequencyScore != nil || o.AverageTicket != nil {
		t.Fatalf("unmapped overrides must stay nil: %+v", o)
	}
}
