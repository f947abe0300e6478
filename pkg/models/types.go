package models

import (
	"time"

	"github.com/shopspring/decimal"
)

/*
INGEST → types bruts issus de la grille importée (jamais persistés)
*/

// RawRow représente une ligne de la grille source : libellé de colonne → cellule non typée
// (string, float64 ou time.Time).
type RawRow map[string]any

/*
AGGREGATE → accumulation par client avant le scoring
*/

// Purchase est un achat normalisé rattaché à un client.
// DateTrusted=false signifie que la date est la date sentinelle.
type Purchase struct {
	Date        time.Time
	Amount      decimal.Decimal
	DateTrusted bool
}

// Contact regroupe les coordonnées, dernière valeur non vide gagnante.
type Contact struct {
	Phone    string `json:"phone,omitempty"`
	WhatsApp string `json:"whatsapp,omitempty"`
	Email    string `json:"email,omitempty"`
	CPF      string `json:"cpf,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// Overrides contient les valeurs pré-calculées trouvées dans la source (nil = absente).
type Overrides struct {
	FirstPurchaseDate     *time.Time
	TotalPurchases        *int
	TotalValue            *decimal.Decimal
	AverageTicket         *decimal.Decimal
	DaysSinceLastPurchase *int
	RecencyScore          *int
	FrequencyScore        *int
	ValueScore            *int
	Segment               string
}

// CustomerAggregate est l'historique d'un client distinct (clé = nom normalisé).
type CustomerAggregate struct {
	Key       string
	Name      string
	Purchases []Purchase
	Contact
	Overrides Overrides
}

/*
OUTPUT → enregistrement final, une ligne par client
*/

// CustomerRFVRecord est l'entité persistée, identifiée par NameKey.
type CustomerRFVRecord struct {
	NameKey string `json:"name_key"`
	Name    string `json:"name"`
	Contact
	FirstPurchaseDate     time.Time       `json:"first_purchase_date"`
	LastPurchaseDate      time.Time       `json:"last_purchase_date"`
	TotalPurchases        int             `json:"total_purchases"`
	TotalValue            decimal.Decimal `json:"total_value"`
	AverageTicket         decimal.Decimal `json:"average_ticket"`
	DaysSinceLastPurchase int             `json:"days_since_last_purchase"`
	RecencyScore          int             `json:"recency_score"`
	FrequencyScore        int             `json:"frequency_score"`
	ValueScore            int             `json:"value_score"`
	Segment               Segment         `json:"segment"`
	SegmentOverridden     bool            `json:"segment_overridden,omitempty"`
	CreatedBy             string          `json:"created_by,omitempty"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ProcessStats sont les compteurs d'un run, remontés à l'opérateur.
type ProcessStats struct {
	TotalRows         int `json:"total_rows"`
	SkippedNoName     int `json:"skipped_no_name"`
	SkippedNoDate     int `json:"skipped_no_date"`
	SkippedZeroAmount int `json:"skipped_zero_amount"`
	UniqueCustomers   int `json:"unique_customers"`
}

// PersistResult résume l'écriture par lots.
type PersistResult struct {
	Batches          int `json:"batches"`
	SucceededBatches int `json:"succeeded_batches"`
	FailedBatches    int `json:"failed_batches"`
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
	Abandoned        int `json:"abandoned"`
}

// RunSummary est le résultat complet d'un cycle upload → process.
type RunSummary struct {
	Stats    ProcessStats    `json:"stats"`
	Persist  PersistResult   `json:"persist"`
	Segments map[Segment]int `json:"segments"`
	UploadID string          `json:"upload_id,omitempty"`
}

// UploadLog est l'entrée append-only écrite à chaque run.
type UploadLog struct {
	ID               string          `json:"id"`
	UploadedBy       string          `json:"uploaded_by"`
	FileName         string          `json:"file_name"`
	RecordCount      int             `json:"record_count"`
	SegmentBreakdown map[Segment]int `json:"segment_breakdown"`
	CreatedAt        time.Time       `json:"created_at"`
}

/*
CONFIG → paramètres d'un run
*/

// Config contient les paramètres passés à calculator.Run.
type Config struct {
	UploadedBy string    // identité de l'opérateur (audit created_by)
	FileName   string    // nom du fichier source, pour le journal d'upload
	Now        time.Time // référence pour days_since_last_purchase
}

// SentinelDate remplace toute date illisible.
var SentinelDate = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateOnly tronque t au jour calendaire (UTC).
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
