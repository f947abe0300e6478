// Package calculator enchaîne les étapes : en-tête → mapping → agrégation → scoring → persistance.
package calculator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"rfv-segments/pkg/aggregate"
	"rfv-segments/pkg/columns"
	"rfv-segments/pkg/models"
	"rfv-segments/pkg/scoring"
	"rfv-segments/pkg/sheet"
)

// Persister est la partie de database.Gateway utilisée par Run.
type Persister interface {
	Persist(ctx context.Context, records []models.CustomerRFVRecord, createdBy string) models.PersistResult
	RecordUpload(ctx context.Context, uploadedBy, fileName string, records []models.CustomerRFVRecord) (models.UploadLog, error)
}

// Detection est le résultat de la découverte d'en-têtes, modifiable avant traitement.
type Detection struct {
	HeaderRow    int                  `json:"header_row"`
	Labels       []string             `json:"labels"`
	Mapping      models.ColumnMapping `json:"mapping"`
	Recognizable bool                 `json:"recognizable"`
	Missing      []string             `json:"missing,omitempty"`
}

// Input : grille source plus corrections manuelles du mapping (prioritaires sur la détection).
type Input struct {
	Grid   sheet.Grid
	Manual models.ColumnMapping
}

// Detect localise l'en-tête et propose le mapping par défaut.
func Detect(grid sheet.Grid) Detection {
	header := columns.LocateHeader(grid)
	labels, _ := sheet.Records(grid, header)
	mapping := columns.MapColumns(labels)
	return Detection{
		HeaderRow:    header,
		Labels:       labels,
		Mapping:      mapping,
		Recognizable: columns.Recognizable(labels),
		Missing:      mapping.Missing(),
	}
}

// Compute est le moteur pur : (grille, mapping, now) → enregistrements triés + compteurs.
// Seules erreurs possibles : grille vide ou mapping incomplet, avant toute lecture de ligne.
func Compute(grid sheet.Grid, mapping models.ColumnMapping, now time.Time) ([]models.CustomerRFVRecord, models.ProcessStats, error) {
	if len(grid) == 0 {
		return nil, models.ProcessStats{}, sheet.ErrEmptyGrid
	}
	if err := mapping.Validate(); err != nil {
		return nil, models.ProcessStats{}, err
	}

	header := columns.LocateHeader(grid)
	labels, rows := sheet.Records(grid, header)
	warnUnknownLabels(mapping, labels)

	aggs, stats := aggregate.Aggregate(rows, mapping, now)
	records := scoring.Score(aggs, now)
	scoring.Sort(records)

	zap.L().Info("calculator: computed",
		zap.Int("header_row", header),
		zap.Int("total_rows", stats.TotalRows),
		zap.Int("skipped_no_name", stats.SkippedNoName),
		zap.Int("skipped_no_date", stats.SkippedNoDate),
		zap.Int("skipped_zero_amount", stats.SkippedZeroAmount),
		zap.Int("unique_customers", stats.UniqueCustomers))
	return records, stats, nil
}

// Run : détection + mapping manuel, calcul, écriture par lots, journal d'upload.
func Run(ctx context.Context, p Persister, in Input, cfg models.Config) (models.RunSummary, []models.CustomerRFVRecord, error) {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mapping := Detect(in.Grid).Mapping.Merge(in.Manual)
	records, stats, err := Compute(in.Grid, mapping, now)
	if err != nil {
		return models.RunSummary{}, nil, eris.Wrap(err, "compute")
	}

	summary := models.RunSummary{
		Stats:    stats,
		Segments: models.SegmentBreakdown(records),
	}
	summary.Persist = p.Persist(ctx, records, cfg.UploadedBy)

	entry, err := p.RecordUpload(ctx, cfg.UploadedBy, cfg.FileName, records)
	if err != nil {
		zap.L().Warn("calculator: upload log not written", zap.Error(err))
	} else {
		summary.UploadID = entry.ID
	}
	return summary, records, nil
}

func warnUnknownLabels(mapping models.ColumnMapping, labels []string) {
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}
	for _, f := range models.Fields {
		if mapping.Has(f) && !known[mapping.Get(f)] {
			zap.L().Warn("calculator: mapped column not found in header",
				zap.String("field", string(f)), zap.String("label", mapping.Get(f)))
		}
	}
}
