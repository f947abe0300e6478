package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"rfv-segments/pkg/models"
)

// DefaultBatchSize : nombre d'enregistrements par instruction d'upsert.
const DefaultBatchSize = 100

// Writer est le port d'écriture utilisé par la Gateway ; *Store l'implémente.
type Writer interface {
	UpsertCustomers(ctx context.Context, batch []models.CustomerRFVRecord, createdBy string) error
	InsertUploadLog(ctx context.Context, entry models.UploadLog) error
}

// GatewayOptions règle le découpage et le parallélisme des écritures.
type GatewayOptions struct {
	BatchSize int  // défaut DefaultBatchSize
	Workers   int  // 1 = séquentiel
	Verbose   bool // barre de progression
}

// Gateway écrit les enregistrements par lots en tolérant l'échec d'un lot.
type Gateway struct {
	w    Writer
	opts GatewayOptions
}

// NewGateway construit une Gateway ; les options invalides prennent leur valeur par défaut.
func NewGateway(w Writer, opts GatewayOptions) *Gateway {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Gateway{w: w, opts: opts}
}

// Persist upserte records par lots. Un lot en échec est compté et journalisé, le run continue.
// Une fois ctx annulé, plus aucun lot n'est lancé : les enregistrements restants sont Abandoned.
func (g *Gateway) Persist(ctx context.Context, records []models.CustomerRFVRecord, createdBy string) models.PersistResult {
	batches := chunk(records, g.opts.BatchSize)
	res := models.PersistResult{Batches: len(batches)}
	if len(batches) == 0 {
		return res
	}

	var bar *progressbar.ProgressBar
	if g.opts.Verbose {
		bar = progressbar.Default(int64(len(batches)), "upsert")
	} else {
		bar = progressbar.DefaultSilent(int64(len(batches)))
	}

	var (
		mu  sync.Mutex
		grp errgroup.Group
		sem = semaphore.NewWeighted(int64(g.opts.Workers))
	)

	for i, batch := range batches {
		i, batch := i, batch // per-iteration copies (go directive < 1.22)
		// le créneau est pris avant de tester ctx : en séquentiel, le lot précédent est terminé
		acquired := sem.Acquire(ctx, 1) == nil
		if !acquired || ctx.Err() != nil {
			if acquired {
				sem.Release(1)
			}
			mu.Lock()
			for _, rest := range batches[i:] {
				res.Abandoned += len(rest)
			}
			mu.Unlock()
			zap.L().Warn("gateway: cancelled, remaining batches abandoned", zap.Int("batch", i))
			break
		}
		grp.Go(func() error {
			defer sem.Release(1)
			err := g.w.UpsertCustomers(ctx, batch, createdBy)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedBatches++
				res.Failed += len(batch)
				zap.L().Warn("gateway: batch failed",
					zap.Int("batch", i), zap.Int("records", len(batch)), zap.Error(err))
			} else {
				res.SucceededBatches++
				res.Succeeded += len(batch)
			}
			_ = bar.Add(1)
			return nil
		})
	}
	_ = grp.Wait()
	_ = bar.Finish()

	zap.L().Info("gateway: persist done",
		zap.Int("batches", res.Batches),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("abandoned", res.Abandoned))
	return res
}

// RecordUpload écrit l'entrée du journal d'upload d'un run et la renvoie.
func (g *Gateway) RecordUpload(ctx context.Context, uploadedBy, fileName string, records []models.CustomerRFVRecord) (models.UploadLog, error) {
	entry := models.UploadLog{
		ID:               uuid.NewString(),
		UploadedBy:       uploadedBy,
		FileName:         fileName,
		RecordCount:      len(records),
		SegmentBreakdown: models.SegmentBreakdown(records),
		CreatedAt:        time.Now().UTC(),
	}
	if err := g.w.InsertUploadLog(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

func chunk(records []models.CustomerRFVRecord, size int) [][]models.CustomerRFVRecord {
	var out [][]models.CustomerRFVRecord
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}
