package scoring

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rfv-segments/pkg/models"
)

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func purchase(daysAgo int, amount int64) models.Purchase {
	return models.Purchase{
		Date:        now.AddDate(0, 0, -daysAgo),
		Amount:      decimal.NewFromInt(amount),
		DateTrusted: true,
	}
}

func intPtr(n int) *int { return &n }

func TestScore_RecencyQuintiles(t *testing.T) {
	aggs := make([]models.CustomerAggregate, 10)
	for i := range aggs {
		aggs[i] = models.CustomerAggregate{
			Key:       fmt.Sprintf("c%d", i+1),
			Purchases: []models.Purchase{purchase(i+1, 10)},
		}
	}
	recs := Score(aggs, now)
	if recs[0].DaysSinceLastPurchase != 1 || recs[0].RecencyScore != 5 {
		t.Fatalf("days=1: got days=%d R=%d, want R=5", recs[0].DaysSinceLastPurchase, recs[0].RecencyScore)
	}
	if recs[9].DaysSinceLastPurchase != 10 || recs[9].RecencyScore != 1 {
		t.Fatalf("days=10: got days=%d R=%d, want R=1", recs[9].DaysSinceLastPurchase, recs[9].RecencyScore)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].RecencyScore > recs[i-1].RecencyScore {
			t.Fatalf("recency not monotone at %d: %d > %d", i, recs[i].RecencyScore, recs[i-1].RecencyScore)
		}
	}
}

func TestScore_ScoresInRange(t *testing.T) {
	var aggs []models.CustomerAggregate
	for i := 0; i < 37; i++ {
		var ps []models.Purchase
		for j := 0; j <= i%6; j++ {
			ps = append(ps, purchase((i*7)%90, int64(i*13%200)))
		}
		aggs = append(aggs, models.CustomerAggregate{Key: fmt.Sprintf("c%02d", i), Purchases: ps})
	}
	for _, r := range Score(aggs, now) {
		for _, s := range []int{r.RecencyScore, r.FrequencyScore, r.ValueScore} {
			if !ValidScore(s) {
				t.Fatalf("%s: score %d out of range", r.NameKey, s)
			}
		}
		if !r.Segment.Valid() {
			t.Fatalf("%s: invalid segment %q", r.NameKey, r.Segment)
		}
		if r.Segment != Classify(r.RecencyScore, r.FrequencyScore, r.ValueScore) {
			t.Fatalf("%s: segment %q inconsistent with scores", r.NameKey, r.Segment)
		}
	}
}

func TestScore_ValueMonotonicity(t *testing.T) {
	base := func(target int64) []models.CustomerAggregate {
		aggs := []models.CustomerAggregate{{Key: "target", Purchases: []models.Purchase{purchase(5, target)}}}
		for i := 1; i <= 9; i++ {
			aggs = append(aggs, models.CustomerAggregate{
				Key:       fmt.Sprintf("c%d", i),
				Purchases: []models.Purchase{purchase(5, int64(i*100))},
			})
		}
		return aggs
	}
	prev := 0
	for _, v := range []int64{0, 50, 150, 400, 401, 900, 5000} {
		got := Score(base(v), now)[0].ValueScore
		if got < prev {
			t.Fatalf("value %d: score %d decreased from %d", v, got, prev)
		}
		prev = got
	}
}

func TestScore_OverridesPassThrough(t *testing.T) {
	aggs := []models.CustomerAggregate{
		{Key: "old", Purchases: []models.Purchase{purchase(300, 10)}, Overrides: models.Overrides{RecencyScore: intPtr(5)}},
		{Key: "new", Purchases: []models.Purchase{purchase(1, 10)}, Overrides: models.Overrides{RecencyScore: intPtr(9)}},
	}
	recs := Score(aggs, now)
	if recs[0].RecencyScore != 5 {
		t.Fatalf("override: got R=%d, want 5", recs[0].RecencyScore)
	}
	if recs[1].RecencyScore != 5 {
		t.Fatalf("out-of-range override must be ignored: got R=%d, want computed 5", recs[1].RecencyScore)
	}
}

func TestScore_FigureOverrides(t *testing.T) {
	total := decimal.NewFromInt(900)
	ticket := decimal.RequireFromString("123.456")
	aggs := []models.CustomerAggregate{{
		Key:       "carla",
		Purchases: []models.Purchase{purchase(3, 900)},
		Overrides: models.Overrides{
			TotalPurchases:        intPtr(3),
			TotalValue:            &total,
			AverageTicket:         &ticket,
			DaysSinceLastPurchase: intPtr(40),
		},
	}}
	r := Score(aggs, now)[0]
	if r.TotalPurchases != 3 || !r.TotalValue.Equal(total) || r.DaysSinceLastPurchase != 40 {
		t.Fatalf("unexpected figures: %+v", r)
	}
	if !r.AverageTicket.Equal(decimal.RequireFromString("123.46")) {
		t.Fatalf("got ticket %s, want 123.46", r.AverageTicket)
	}
}

func TestScore_AverageTicketAndDates(t *testing.T) {
	aggs := []models.CustomerAggregate{{
		Key: "ana",
		Purchases: []models.Purchase{
			purchase(10, 10),
			{Date: models.SentinelDate, Amount: decimal.NewFromInt(20)},
			purchase(40, 5),
		},
	}}
	r := Score(aggs, now)[0]
	if !r.TotalValue.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("got total %s, want 35", r.TotalValue)
	}
	if !r.AverageTicket.Equal(decimal.RequireFromString("11.67")) {
		t.Fatalf("got ticket %s, want 11.67", r.AverageTicket)
	}
	if !r.FirstPurchaseDate.Equal(now.AddDate(0, 0, -40)) || !r.LastPurchaseDate.Equal(now.AddDate(0, 0, -10)) {
		t.Fatalf("sentinel must not drive dates: first=%v last=%v", r.FirstPurchaseDate, r.LastPurchaseDate)
	}
	if r.DaysSinceLastPurchase != 10 {
		t.Fatalf("got days %d, want 10", r.DaysSinceLastPurchase)
	}
}

func TestScore_Idempotent(t *testing.T) {
	aggs := []models.CustomerAggregate{
		{Key: "a", Purchases: []models.Purchase{purchase(3, 100), purchase(9, 40)}},
		{Key: "b", Purchases: []models.Purchase{purchase(60, 15)}},
		{Key: "c", Purchases: []models.Purchase{purchase(120, 900)}, Overrides: models.Overrides{Segment: "Fiéis"}},
	}
	first, second := Score(aggs, now), Score(aggs, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestClassify_Table(t *testing.T) {
	cases := []struct {
		r, f, v int
		want    models.Segment
	}{
		{5, 5, 5, models.SegmentChampions},
		{1, 1, 1, models.SegmentLost},
		{3, 3, 3, models.SegmentLoyal},
		{4, 4, 3, models.SegmentLoyal},
		{5, 1, 1, models.SegmentPotential},
		{2, 5, 5, models.SegmentAtRisk},
		{1, 2, 4, models.SegmentHibernating},
		{2, 1, 2, models.SegmentHibernating},
		{1, 2, 5, models.SegmentLost},
		{3, 2, 2, models.SegmentLost},
	}
	for _, c := range cases {
		if got := Classify(c.r, c.f, c.v); got != c.want {
			t.Fatalf("(%d,%d,%d): got %q, want %q", c.r, c.f, c.v, got, c.want)
		}
	}
}

func TestMatchSegment_Synonyms(t *testing.T) {
	cases := map[string]models.Segment{
		"Campeões":          models.SegmentChampions,
		"Clientes Leais":    models.SegmentLoyal,
		"Fiéis":             models.SegmentLoyal,
		"Potenciais Leais":  models.SegmentPotential,
		"Novos":             models.SegmentPotential,
		"Promissores":       models.SegmentPotential,
		"Precisam Atenção":  models.SegmentAtRisk,
		"Não Podem Perder":  models.SegmentAtRisk,
		"Quase Dormindo":    models.SegmentHibernating,
		"Perdidos":          models.SegmentLost,
		"AT RISK":           models.SegmentAtRisk,
		"  hibernating  ":   models.SegmentHibernating,
	}
	for label, want := range cases {
		got, ok := MatchSegment(label)
		if !ok || got != want {
			t.Fatalf("%q: got %q (ok=%v), want %q", label, got, ok, want)
		}
	}
	if _, ok := MatchSegment("VIP Gold"); ok {
		t.Fatal("unknown label should not match")
	}
}

func TestResolve_OverrideAndFallback(t *testing.T) {
	if s, overridden := Resolve("Quase Dormindo", 5, 5, 5); s != models.SegmentHibernating || !overridden {
		t.Fatalf("got %q/%v, want Hibernating override", s, overridden)
	}
	if s, overridden := Resolve("???", 5, 5, 5); s != models.SegmentChampions || overridden {
		t.Fatalf("got %q/%v, want computed Champions", s, overridden)
	}
	if s, overridden := Resolve("", 1, 1, 1); s != models.SegmentLost || overridden {
		t.Fatalf("got %q/%v, want computed Lost", s, overridden)
	}
}

func TestSort_PriorityThenName(t *testing.T) {
	recs := []models.CustomerRFVRecord{
		{NameKey: "zeca", Segment: models.SegmentLost},
		{NameKey: "bia", Segment: models.SegmentChampions},
		{NameKey: "ana", Segment: models.SegmentLost},
		{NameKey: "caio", Segment: models.SegmentLoyal},
	}
	Sort(recs)
	got := []string{recs[0].NameKey, recs[1].NameKey, recs[2].NameKey, recs[3].NameKey}
	want := []string{"bia", "caio", "ana", "zeca"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
