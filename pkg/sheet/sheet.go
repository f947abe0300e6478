package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"rfv-segments/pkg/models"
)

// ErrEmptyGrid : le fichier ne contient aucune ligne exploitable.
var ErrEmptyGrid = eris.New("empty grid")

// Grid est une grille rectangulaire sans schéma ; cellules string, float64 ou time.Time.
type Grid [][]any

// Load lit un fichier .csv/.tsv/.txt ou .xlsx/.xlsm. sheetName vide = première feuille.
func Load(path, sheetName string) (Grid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		return ReadXLSX(f, sheetName)
	case ".csv", ".tsv", ".txt", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		return ReadCSV(data)
	default:
		return nil, eris.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV décode puis parse un CSV ; le délimiteur est deviné sur la première ligne non vide.
func ReadCSV(data []byte) (Grid, error) {
	decoded, enc, err := DetectAndDecode(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = sniffDelimiter(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid Grid
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			zap.L().Debug("sheet: skipping malformed csv line", zap.Int("line", line), zap.Error(err))
			continue
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		grid = append(grid, row)
	}
	if len(grid) == 0 {
		return nil, ErrEmptyGrid
	}
	zap.L().Debug("sheet: csv loaded",
		zap.String("encoding", enc),
		zap.String("delimiter", string(reader.Comma)),
		zap.Int("rows", len(grid)))
	return grid, nil
}

// sniffDelimiter choisit entre ',', ';' et tabulation selon la première ligne non vide.
func sniffDelimiter(data []byte) rune {
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		best, bestCount := ',', strings.Count(line, ",")
		for _, d := range []rune{';', '\t'} {
			if c := strings.Count(line, string(d)); c > bestCount {
				best, bestCount = d, c
			}
		}
		return best
	}
	return ','
}

// ReadXLSX lit une feuille via excelize. Les cellules numériques deviennent des float64
// (les dates Excel restent des numéros de série), le reste des chaînes.
func ReadXLSX(r io.Reader, sheetName string) (Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "open xlsx")
	}
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyGrid
		}
		sheetName = sheets[0]
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, eris.Wrapf(err, "read sheet %q", sheetName)
	}

	grid := make(Grid, 0, len(rows))
	for r, cells := range rows {
		row := make([]any, len(cells))
		for c, raw := range cells {
			row[c] = typedCell(f, sheetName, r, c, raw)
		}
		grid = append(grid, row)
	}
	if len(grid) == 0 {
		return nil, ErrEmptyGrid
	}
	return grid, nil
}

func typedCell(f *excelize.File, sheetName string, r, c int, raw string) any {
	if raw == "" {
		return ""
	}
	axis, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return raw
	}
	typ, err := f.GetCellType(sheetName, axis)
	if err != nil {
		return raw
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeBool, excelize.CellTypeError:
		return raw
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

// Records transforme les lignes sous l'en-tête en RawRow. Les libellés vides deviennent
// "__EMPTY", "__EMPTY_1"… ; les doublons reçoivent un suffixe "_1", "_2"… Les lignes vides sont ignorées.
func Records(grid Grid, headerRow int) ([]string, []models.RawRow) {
	if headerRow < 0 || headerRow >= len(grid) {
		return nil, nil
	}
	width := 0
	for _, row := range grid[headerRow:] {
		if len(row) > width {
			width = len(row)
		}
	}
	labels := Labels(grid[headerRow], width)

	var out []models.RawRow
	for _, row := range grid[headerRow+1:] {
		if isBlank(row) {
			continue
		}
		rec := make(models.RawRow, len(labels))
		for i, label := range labels {
			if i < len(row) {
				rec[label] = row[i]
			}
		}
		out = append(out, rec)
	}
	return labels, out
}

// Labels construit des libellés uniques pour une ligne d'en-têtes de largeur width.
func Labels(header []any, width int) []string {
	if width < len(header) {
		width = len(header)
	}
	labels := make([]string, width)
	seen := make(map[string]int, width)
	empty := 0
	for i := 0; i < width; i++ {
		var label string
		if i < len(header) {
			label = strings.TrimSpace(fmt.Sprint(cellOrEmpty(header[i])))
		}
		if label == "" {
			label = "__EMPTY"
			if empty > 0 {
				label = fmt.Sprintf("__EMPTY_%d", empty)
			}
			empty++
		}
		if n, dup := seen[label]; dup {
			seen[label] = n + 1
			label = fmt.Sprintf("%s_%d", label, n+1)
		} else {
			seen[label] = 0
		}
		labels[i] = label
	}
	return labels
}

func cellOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return v
}

func isBlank(row []any) bool {
	for _, v := range row {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return false
	}
	return true
}
