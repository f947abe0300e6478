package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"rfv-segments/pkg/models"
)

const (
	customersTable = "customer_rfv"
	uploadsTable   = "rfv_upload_logs"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// Store est l'adaptateur SQL (MySQL/MariaDB, Postgres, SQLite) du port de persistance.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore enveloppe une connexion déjà ouverte.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB expose la connexion sous-jacente.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect renvoie le moteur SQL de la connexion.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close ferme la connexion.
func (s *Store) Close() error { return s.db.Close() }

// Ping vérifie la connexion.
func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "ping")
}

// customerColumns : ordre des colonnes de l'upsert (et des valeurs de recordArgs).
var customerColumns = []string{
	"name_key", "name", "phone", "whatsapp", "email", "cpf", "record_id",
	"first_purchase_date", "last_purchase_date",
	"total_purchases", "total_value", "average_ticket", "days_since_last_purchase",
	"recency_score", "frequency_score", "value_score",
	"segment", "segment_overridden", "created_by", "updated_at",
}

// EnsureSchema crée les tables si besoin.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ts := "TIMESTAMP"
	if s.dialect == DialectMySQL {
		ts = "DATETIME"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name_key VARCHAR(255) NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(64),
			whatsapp VARCHAR(64),
			email VARCHAR(255),
			cpf VARCHAR(32),
			record_id VARCHAR(128),
			first_purchase_date DATE NOT NULL,
			last_purchase_date DATE NOT NULL,
			total_purchases INTEGER NOT NULL,
			total_value DECIMAL(14,2) NOT NULL,
			average_ticket DECIMAL(14,2) NOT NULL,
			days_since_last_purchase INTEGER NOT NULL,
			recency_score INTEGER NOT NULL,
			frequency_score INTEGER NOT NULL,
			value_score INTEGER NOT NULL,
			segment VARCHAR(32) NOT NULL,
			segment_overridden BOOLEAN NOT NULL DEFAULT FALSE,
			created_by VARCHAR(255),
			updated_at %s NOT NULL
		)`, customersTable, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			uploaded_by VARCHAR(255),
			file_name VARCHAR(512),
			record_count INTEGER NOT NULL,
			segment_breakdown TEXT NOT NULL,
			created_at %s NOT NULL
		)`, uploadsTable, ts),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "ensure schema")
		}
	}
	return nil
}

// UpsertCustomers écrit un lot en une seule instruction, clé name_key.
// created_by n'est écrit qu'à l'insertion ; updated_at à chaque écriture.
func (s *Store) UpsertCustomers(ctx context.Context, batch []models.CustomerRFVRecord, createdBy string) error {
	if len(batch) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(timestampLayout)
	q := &query{dialect: s.dialect}

	rows := make([]string, 0, len(batch))
	for _, r := range batch {
		marks := make([]string, 0, len(customerColumns))
		for _, v := range recordArgs(r, createdBy, now) {
			marks = append(marks, q.arg(v))
		}
		rows = append(rows, "("+strings.Join(marks, ", ")+")")
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s",
		customersTable, strings.Join(customerColumns, ", "), strings.Join(rows, ", "), s.onConflict())
	if _, err := s.db.ExecContext(ctx, stmt, q.args...); err != nil {
		return eris.Wrapf(err, "upsert %d customers", len(batch))
	}
	return nil
}

func (s *Store) onConflict() string {
	var sets []string
	for _, c := range customerColumns {
		if c == "name_key" || c == "created_by" {
			continue
		}
		if s.dialect == DialectMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	if s.dialect == DialectMySQL {
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return "ON CONFLICT (name_key) DO UPDATE SET " + strings.Join(sets, ", ")
}

func recordArgs(r models.CustomerRFVRecord, createdBy, now string) []any {
	return []any{
		r.NameKey, r.Name, r.Phone, r.WhatsApp, r.Email, r.CPF, r.RecordID,
		r.FirstPurchaseDate.Format(dateLayout), r.LastPurchaseDate.Format(dateLayout),
		r.TotalPurchases, r.TotalValue.Round(2), r.AverageTicket.Round(2), r.DaysSinceLastPurchase,
		r.RecencyScore, r.FrequencyScore, r.ValueScore,
		string(r.Segment), r.SegmentOverridden, createdBy, now,
	}
}

// InsertUploadLog ajoute une entrée au journal des uploads (append-only).
func (s *Store) InsertUploadLog(ctx context.Context, entry models.UploadLog) error {
	breakdown, err := json.Marshal(entry.SegmentBreakdown)
	if err != nil {
		return eris.Wrap(err, "marshal segment breakdown")
	}
	q := &query{dialect: s.dialect}
	stmt := fmt.Sprintf("INSERT INTO %s (id, uploaded_by, file_name, record_count, segment_breakdown, created_at) VALUES (%s, %s, %s, %s, %s, %s)",
		uploadsTable,
		q.arg(entry.ID), q.arg(entry.UploadedBy), q.arg(entry.FileName), q.arg(entry.RecordCount),
		q.arg(string(breakdown)), q.arg(entry.CreatedAt.UTC().Format(timestampLayout)))
	if _, err := s.db.ExecContext(ctx, stmt, q.args...); err != nil {
		return eris.Wrap(err, "insert upload log")
	}
	return nil
}

// SortField est une clé de tri de QueryCustomers.
type SortField string

const (
	SortByValue     SortField = "value"
	SortByTicket    SortField = "ticket"
	SortByPurchases SortField = "purchases"
	SortByRecency   SortField = "recency"
	SortByName      SortField = "name"
)

var sortColumns = map[SortField]string{
	SortByValue:     "total_value",
	SortByTicket:    "average_ticket",
	SortByPurchases: "total_purchases",
	SortByRecency:   "days_since_last_purchase",
	SortByName:      "name_key",
}

// ParseSortField valide une clé de tri ; "" vaut SortByName.
func ParseSortField(s string) (SortField, bool) {
	if s == "" {
		return SortByName, true
	}
	f := SortField(strings.ToLower(s))
	_, ok := sortColumns[f]
	return f, ok
}

// CustomerFilter : requête de lecture des consommateurs (UI, CRM). Champs nil/zéro = pas de filtre.
type CustomerFilter struct {
	Segment  models.Segment
	MinValue *decimal.Decimal
	MaxValue *decimal.Decimal
	MinDays  *int
	MaxDays  *int
	From     *time.Time // last_purchase_date ≥ From
	To       *time.Time // last_purchase_date ≤ To
	Sort     SortField
	Desc     bool
	Limit    int
	Offset   int
}

// QueryCustomers renvoie les enregistrements courants selon le filtre.
func (s *Store) QueryCustomers(ctx context.Context, f CustomerFilter) ([]models.CustomerRFVRecord, error) {
	q := &query{dialect: s.dialect}
	var where []string
	if f.Segment != "" {
		where = append(where, "segment = "+q.arg(string(f.Segment)))
	}
	if f.MinValue != nil {
		where = append(where, "total_value >= "+q.arg(*f.MinValue))
	}
	if f.MaxValue != nil {
		where = append(where, "total_value <= "+q.arg(*f.MaxValue))
	}
	if f.MinDays != nil {
		where = append(where, "days_since_last_purchase >= "+q.arg(*f.MinDays))
	}
	if f.MaxDays != nil {
		where = append(where, "days_since_last_purchase <= "+q.arg(*f.MaxDays))
	}
	if f.From != nil {
		where = append(where, "last_purchase_date >= "+q.arg(f.From.Format(dateLayout)))
	}
	if f.To != nil {
		where = append(where, "last_purchase_date <= "+q.arg(f.To.Format(dateLayout)))
	}

	col, ok := sortColumns[f.Sort]
	if !ok {
		col = sortColumns[SortByName]
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(customerColumns, ", "), customersTable)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, name_key ASC", col, dir)
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, max(f.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "query customers")
	}
	defer rows.Close()

	var out []models.CustomerRFVRecord
	for rows.Next() {
		r, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate customers")
	}
	return out, nil
}

func scanCustomer(rows *sql.Rows) (models.CustomerRFVRecord, error) {
	var (
		r                                        models.CustomerRFVRecord
		phone, whatsapp, email, cpf, recordID, by sql.NullString
		first, last, updated                     flexTime
		segment                                  string
	)
	err := rows.Scan(
		&r.NameKey, &r.Name, &phone, &whatsapp, &email, &cpf, &recordID,
		&first, &last,
		&r.TotalPurchases, &r.TotalValue, &r.AverageTicket, &r.DaysSinceLastPurchase,
		&r.RecencyScore, &r.FrequencyScore, &r.ValueScore,
		&segment, &r.SegmentOverridden, &by, &updated,
	)
	if err != nil {
		return r, eris.Wrap(err, "scan customer")
	}
	r.Phone, r.WhatsApp, r.Email, r.CPF, r.RecordID = phone.String, whatsapp.String, email.String, cpf.String, recordID.String
	r.FirstPurchaseDate = models.DateOnly(first.Time)
	r.LastPurchaseDate = models.DateOnly(last.Time)
	r.UpdatedAt = updated.Time
	r.CreatedBy = by.String
	r.Segment = models.Segment(segment)
	return r, nil
}

// ListUploadLogs renvoie les dernières entrées du journal, les plus récentes d'abord.
func (s *Store) ListUploadLogs(ctx context.Context, limit int) ([]models.UploadLog, error) {
	stmt := fmt.Sprintf("SELECT id, uploaded_by, file_name, record_count, segment_breakdown, created_at FROM %s ORDER BY created_at DESC, id ASC", uploadsTable)
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "query upload logs")
	}
	defer rows.Close()

	var out []models.UploadLog
	for rows.Next() {
		var (
			l         models.UploadLog
			by, file  sql.NullString
			breakdown string
			created   flexTime
		)
		if err := rows.Scan(&l.ID, &by, &file, &l.RecordCount, &breakdown, &created); err != nil {
			return nil, eris.Wrap(err, "scan upload log")
		}
		if err := json.Unmarshal([]byte(breakdown), &l.SegmentBreakdown); err != nil {
			return nil, eris.Wrapf(err, "decode breakdown of %s", l.ID)
		}
		l.UploadedBy, l.FileName, l.CreatedAt = by.String, file.String, created.Time
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate upload logs")
	}
	return out, nil
}

// SegmentCounts compte les clients stockés par segment ; les six segments sont toujours présents.
func (s *Store) SegmentCounts(ctx context.Context) (map[models.Segment]int, error) {
	out := make(map[models.Segment]int, len(models.Segments))
	for _, seg := range models.Segments {
		out[seg] = 0
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT segment, COUNT(*) FROM %s GROUP BY segment", customersTable))
	if err != nil {
		return nil, eris.Wrap(err, "count segments")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seg string
			n   int
		)
		if err := rows.Scan(&seg, &n); err != nil {
			return nil, eris.Wrap(err, "scan segment count")
		}
		out[models.Segment(seg)] = n
	}
	return out, eris.Wrap(rows.Err(), "iterate segment counts")
}

// query accumule les arguments et produit les placeholders du dialecte.
type query struct {
	dialect Dialect
	args    []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return q.dialect.placeholder(len(q.args))
}

// flexTime lit une date ou un horodatage quel que soit le driver : time.Time natif
// (MySQL parseTime, lib/pq, SQLite sur colonnes DATE/TIMESTAMP) ou texte.
type flexTime struct {
	Time  time.Time
	Valid bool
}

var flexLayouts = []string{
	timestampLayout,
	dateLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05",
}

func (t *flexTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return eris.Errorf("cannot scan %T into time", src)
}

func (t *flexTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range flexLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return eris.Errorf("cannot parse time %q", s)
}
