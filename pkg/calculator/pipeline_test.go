package calculator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rfv-segments/pkg/models"
	"rfv-segments/pkg/sheet"
)

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func salesGrid() sheet.Grid {
	return sheet.Grid{
		{"Relatório de vendas - fevereiro"},
		{},
		{"Nome do Cliente", "Telefone", "Data da Compra", "Valor"},
		{"Maria Silva", "11 9999-0000", "10/02/2024", "R$ 1.234,56"},
		{"MARIA SILVA", "", "2024-02-25", "1,234.56"},
		{"João Souza", "21 8888-0000", "invalid", "300"},
		{"", "", "01/02/2024", "50"},
		{"Ana Lima", "", 45292.0, 0.0},
	}
}

type fakePersister struct {
	persisted []models.CustomerRFVRecord
	createdBy string
	logs      int
	logErr    error
}

func (f *fakePersister) Persist(_ context.Context, records []models.CustomerRFVRecord, createdBy string) models.PersistResult {
	f.persisted = records
	f.createdBy = createdBy
	return models.PersistResult{Batches: 1, SucceededBatches: 1, Succeeded: len(records)}
}

func (f *fakePersister) RecordUpload(_ context.Context, uploadedBy, fileName string, records []models.CustomerRFVRecord) (models.UploadLog, error) {
	f.logs++
	if f.logErr != nil {
		return models.UploadLog{}, f.logErr
	}
	return models.UploadLog{ID: "upload-1", UploadedBy: uploadedBy, FileName: fileName, RecordCount: len(records)}, nil
}

func find(t *testing.T, recs []models.CustomerRFVRecord, key string) models.CustomerRFVRecord {
	t.Helper()
	for _, r := range recs {
		if r.NameKey == key {
			return r
		}
	}
	t.Fatalf("customer %q not found", key)
	return models.CustomerRFVRecord{}
}

func TestDetect(t *testing.T) {
	d := Detect(salesGrid())
	if d.HeaderRow != 2 {
		t.Fatalf("got header row %d, want 2", d.HeaderRow)
	}
	if d.Mapping.Get(models.FieldCustomerName) != "Nome do Cliente" ||
		d.Mapping.Get(models.FieldPurchaseDate) != "Data da Compra" ||
		d.Mapping.Get(models.FieldAmount) != "Valor" {
		t.Fatalf("unexpected mapping: %v", d.Mapping)
	}
	if !d.Recognizable || len(d.Missing) != 0 {
		t.Fatalf("unexpected detection: %+v", d)
	}
}

func TestCompute_EndToEnd(t *testing.T) {
	grid := salesGrid()
	recs, stats, err := Compute(grid, Detect(grid).Mapping, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.ProcessStats{TotalRows: 5, SkippedNoName: 1, SkippedNoDate: 1, SkippedZeroAmount: 1, UniqueCustomers: 3}
	if stats != want {
		t.Fatalf("got stats %+v, want %+v", stats, want)
	}

	maria := find(t, recs, "maria silva")
	if maria.TotalPurchases != 2 || !maria.TotalValue.Equal(decimal.RequireFromString("2469.12")) {
		t.Fatalf("maria: got %d purchases, total %s", maria.TotalPurchases, maria.TotalValue)
	}
	if maria.Name != "Maria Silva" || maria.Phone != "11 9999-0000" || maria.DaysSinceLastPurchase != 5 {
		t.Fatalf("maria: unexpected record %+v", maria)
	}

	joao := find(t, recs, "joão souza")
	if !joao.TotalValue.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("joao: invalid date must still count amount, got %s", joao.TotalValue)
	}

	for _, r := range recs {
		if r.RecencyScore < 1 || r.RecencyScore > 5 || !r.Segment.Valid() {
			t.Fatalf("invalid record %+v", r)
		}
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Segment.Priority() < recs[i-1].Segment.Priority() {
			t.Fatalf("records not sorted by segment priority: %v then %v", recs[i-1].Segment, recs[i].Segment)
		}
	}
}

func TestCompute_Idempotent(t *testing.T) {
	grid := salesGrid()
	m := Detect(grid).Mapping
	a, _, _ := Compute(grid, m, now)
	b, _, _ := Compute(grid, m, now)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two runs with the same input and reference time differ")
	}
}

func TestCompute_MappingIncomplete(t *testing.T) {
	_, _, err := Compute(salesGrid(), models.ColumnMapping{models.FieldCustomerName: "Nome do Cliente"}, now)
	if !errors.Is(err, models.ErrMappingIncomplete) {
		t.Fatalf("got %v, want ErrMappingIncomplete", err)
	}
}

func TestCompute_EmptyGrid(t *testing.T) {
	if _, _, err := Compute(nil, models.ColumnMapping{}, now); !errors.Is(err, sheet.ErrEmptyGrid) {
		t.Fatalf("got %v, want ErrEmptyGrid", err)
	}
}

func TestCompute_PreScoredOverrides(t *testing.T) {
	grid := sheet.Grid{
		{"Cliente", "Dias desde a última compra", "Total Gasto", "Total de Compras", "R", "F", "V", "Segmento"},
		{"Carla", "400", "50,00", "1", "5", "1", "1", "Campeões"},
		{"Davi", "2", "9.000,00", "30", "", "", "", ""},
		{"Eva", "90", "120,00", "3", "", "", "", "Desconhecido"},
	}
	recs, _, err := Compute(grid, Detect(grid).Mapping, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	carla := find(t, recs, "carla")
	if carla.RecencyScore != 5 || carla.FrequencyScore != 1 || carla.ValueScore != 1 {
		t.Fatalf("carla: scores not passed through: %+v", carla)
	}
	if carla.Segment != models.SegmentChampions || !carla.SegmentOverridden {
		t.Fatalf("carla: got segment %q", carla.Segment)
	}
	if carla.DaysSinceLastPurchase != 400 || carla.TotalPurchases != 1 {
		t.Fatalf("carla: figures not passed through: %+v", carla)
	}
	eva := find(t, recs, "eva")
	if eva.SegmentOverridden {
		t.Fatalf("eva: unknown label must fall back to computed segment")
	}
	davi := find(t, recs, "davi")
	if davi.TotalPurchases != 30 || !davi.TotalValue.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("davi: unexpected figures %+v", davi)
	}
}

func TestCompute_SourceFirstPurchaseDate(t *testing.T) {
	grid := sheet.Grid{
		{"Cliente", "Data da Primeira Compra", "Data da Última Compra", "Total Gasto", "Total de Compras"},
		{"Maria", "01/01/2020", "15/02/2024", "900,00", "12"},
		{"Pedro", "20/02/2024", "10/02/2024", "50,00", "1"},
		{"Lia", "lixo", "05/02/2024", "80,00", "2"},
	}
	d := Detect(grid)
	if d.Mapping.Get(models.FieldFirstPurchaseDate) != "Data da Primeira Compra" {
		t.Fatalf("first_purchase_date not mapped: %v", d.Mapping)
	}
	recs, _, err := Compute(grid, d.Mapping, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	maria := find(t, recs, "maria")
	if !maria.FirstPurchaseDate.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("maria: got first %v, want 2020-01-01", maria.FirstPurchaseDate)
	}
	if !maria.LastPurchaseDate.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("maria: got last %v, want 2024-02-15", maria.LastPurchaseDate)
	}

	// une date source postérieure aux achats ne remplace pas la date calculée
	pedro := find(t, recs, "pedro")
	if !pedro.FirstPurchaseDate.Equal(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("pedro: got first %v, want 2024-02-10", pedro.FirstPurchaseDate)
	}
	lia := find(t, recs, "lia")
	if !lia.FirstPurchaseDate.Equal(lia.LastPurchaseDate) {
		t.Fatalf("lia: unparsable source date must be ignored, got %v", lia.FirstPurchaseDate)
	}
}

func TestRun_PersistsAndLogs(t *testing.T) {
	p := &fakePersister{}
	summary, recs, err := Run(context.Background(), p, Input{Grid: salesGrid()},
		models.Config{UploadedBy: "ana@loja", FileName: "fev.csv", Now: now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.persisted) != 3 || len(recs) != 3 || p.createdBy != "ana@loja" || p.logs != 1 {
		t.Fatalf("unexpected persistence: persisted=%d logs=%d by=%q", len(p.persisted), p.logs, p.createdBy)
	}
	if summary.UploadID != "upload-1" || summary.Persist.Succeeded != 3 || summary.Stats.UniqueCustomers != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	total := 0
	for _, n := range summary.Segments {
		total += n
	}
	if total != 3 || len(summary.Segments) != 6 {
		t.Fatalf("unexpected breakdown: %v", summary.Segments)
	}
}

func TestRun_ManualMappingWins(t *testing.T) {
	p := &fakePersister{}
	manual := models.ColumnMapping{models.FieldAmount: ""}
	_, _, err := Run(context.Background(), p, Input{Grid: salesGrid(), Manual: manual}, models.Config{Now: now})
	if !errors.Is(err, models.ErrMappingIncomplete) {
		t.Fatalf("got %v, want ErrMappingIncomplete after clearing amount", err)
	}
	if p.logs != 0 || p.persisted != nil {
		t.Fatal("nothing may be written when the mapping is incomplete")
	}
}

func TestRun_UploadLogFailureIsNotFatal(t *testing.T) {
	p := &fakePersister{logErr: errors.New("db down")}
	summary, _, err := Run(context.Background(), p, Input{Grid: salesGrid()}, models.Config{Now: now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.UploadID != "" || summary.Persist.Succeeded != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
