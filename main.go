package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"rfv-segments/pkg/api"
	"rfv-segments/pkg/calculator"
	"rfv-segments/pkg/config"
	"rfv-segments/pkg/database"
	"rfv-segments/pkg/models"
	"rfv-segments/pkg/sheet"
)

// mapFlags collecte les -map field=Label répétés.
type mapFlags models.ColumnMapping

func (m mapFlags) String() string {
	parts := make([]string, 0, len(m))
	for f, l := range m {
		parts = append(parts, string(f)+"="+l)
	}
	return strings.Join(parts, ",")
}

func (m mapFlags) Set(v string) error {
	field, label, ok := strings.Cut(v, "=")
	if !ok {
		return eris.Errorf("expected field=Label, got %q", v)
	}
	f, ok := models.ParseField(field)
	if !ok {
		return eris.Errorf("unknown canonical field %q", field)
	}
	m[f] = strings.TrimSpace(label)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	manual := mapFlags{}
	file := flag.String("file", "", "Fichier source (.xlsx, .csv)")
	sheetName := flag.String("sheet", "", "Feuille xlsx (défaut : la première)")
	mappingFile := flag.String("mapping", "", "Mapping JSON {\"customer_name\":\"Cliente\",...}")
	flag.Var(manual, "map", "Correction manuelle field=Label (répétable)")
	dsn := flag.String("dsn", cfg.DSN, "DSN (mariadb://, mysql://, postgres://, sqlite://)")
	uploadedBy := flag.String("uploaded-by", cfg.UploadedBy, "Identité de l'opérateur (created_by)")
	batch := flag.Int("batch", cfg.BatchSize, "Taille des lots d'upsert")
	workers := flag.Int("workers", cfg.Workers, "Lots écrits en parallèle")
	nowFlag := flag.String("now", "", "Date de référence YYYY-MM-DD (défaut : aujourd'hui)")
	detect := flag.Bool("detect", false, "Affiche l'en-tête et le mapping détectés, sans traitement")
	dryRun := flag.Bool("dry-run", false, "Calcule et affiche les enregistrements en JSON, sans base")
	serve := flag.Bool("serve", false, "Démarre l'API de lecture")
	verbose := flag.Bool("v", false, "Mode verbeux")
	flag.Parse()

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		err = runServe(ctx, *dsn, cfg)
	case *detect:
		err = runDetect(*file, *sheetName)
	default:
		err = runProcess(ctx, processArgs{
			file: *file, sheet: *sheetName, mappingFile: *mappingFile, manual: models.ColumnMapping(manual),
			dsn: *dsn, uploadedBy: *uploadedBy, batch: *batch, workers: *workers,
			now: *nowFlag, dryRun: *dryRun, verbose: *verbose,
		})
	}
	if err != nil {
		logger.Error("rfv failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func runDetect(file, sheetName string) error {
	if file == "" {
		return eris.New("usage: rfv -detect -file vendas.xlsx")
	}
	grid, err := sheet.Load(file, sheetName)
	if err != nil {
		return err
	}
	d := calculator.Detect(grid)
	if !d.Recognizable {
		zap.L().Warn("no candidate column contains a recognizable keyword", zap.Int("header_row", d.HeaderRow))
	}
	return printJSON(d)
}

type processArgs struct {
	file, sheet, mappingFile string
	manual                   models.ColumnMapping
	dsn, uploadedBy          string
	batch, workers           int
	now                      string
	dryRun, verbose          bool
}

func runProcess(ctx context.Context, a processArgs) error {
	if a.file == "" {
		return eris.New("usage: rfv -file vendas.xlsx [-dsn ...] [-map field=Label] [-dry-run]")
	}

	now := time.Now().UTC()
	if a.now != "" {
		t, err := time.Parse("2006-01-02", a.now)
		if err != nil {
			return eris.Wrapf(err, "-now %q", a.now)
		}
		now = t
	}

	manual := models.ColumnMapping{}
	if a.mappingFile != "" {
		data, err := os.ReadFile(a.mappingFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", a.mappingFile)
		}
		if manual, err = models.ParseColumnMapping(data); err != nil {
			return err
		}
	}
	manual = manual.Merge(a.manual)

	grid, err := sheet.Load(a.file, a.sheet)
	if err != nil {
		return err
	}

	if a.dryRun {
		mapping := calculator.Detect(grid).Mapping.Merge(manual)
		records, stats, err := calculator.Compute(grid, mapping, now)
		if err != nil {
			return err
		}
		// stdout reste du JSON pur ; les compteurs vont sur stderr
		printStats(os.Stderr, stats)
		return printJSON(records)
	}

	if a.dsn == "" {
		return eris.New("missing -dsn (or RFV_DSN); use -dry-run to skip storage")
	}
	store, _, err := database.Open(a.dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	zap.L().Info("connected", zap.String("dialect", string(store.Dialect())))

	gw := database.NewGateway(store, database.GatewayOptions{BatchSize: a.batch, Workers: a.workers, Verbose: a.verbose})
	summary, _, err := calculator.Run(ctx, gw, calculator.Input{Grid: grid, Manual: manual}, models.Config{
		UploadedBy: a.uploadedBy,
		FileName:   filepath.Base(a.file),
		Now:        now,
	})
	if err != nil {
		return err
	}

	printStats(os.Stdout, summary.Stats)
	p := summary.Persist
	fmt.Printf("batches=%d ; succeeded=%d ; failed=%d ; records_ok=%d ; records_failed=%d ; abandoned=%d\n",
		p.Batches, p.SucceededBatches, p.FailedBatches, p.Succeeded, p.Failed, p.Abandoned)
	printSegments(summary.Segments)
	if summary.UploadID != "" {
		fmt.Printf("upload_id=%s\n", summary.UploadID)
	}
	if p.Failed > 0 || p.Abandoned > 0 {
		return eris.Errorf("%d records not written, rerun to retry", p.Failed+p.Abandoned)
	}
	return nil
}

func runServe(ctx context.Context, dsn string, cfg *config.Config) error {
	if dsn == "" {
		return eris.New("missing -dsn (or RFV_DSN)")
	}
	store, _, err := database.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewHandler(store, cfg.CORSOrigins, cfg.Production()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("api listening", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "listen")
	}
	return nil
}

// Sortie : une ligne de compteurs puis une ligne par segment.
func printStats(w io.Writer, s models.ProcessStats) {
	fmt.Fprintf(w, "total_rows=%d ; skipped_no_name=%d ; skipped_no_date=%d ; skipped_zero_amount=%d ; unique_customers=%d\n",
		s.TotalRows, s.SkippedNoName, s.SkippedNoDate, s.SkippedZeroAmount, s.UniqueCustomers)
}

func printSegments(counts map[models.Segment]int) {
	for _, seg := range models.Segments {
		fmt.Printf("%-12s ; %d\n", seg, counts[seg])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
