package models

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Field est un champ sémantique canonique.
type Field string

const (
	FieldCustomerName          Field = "customer_name"
	FieldPhone                 Field = "phone"
	FieldWhatsApp              Field = "whatsapp"
	FieldEmail                 Field = "email"
	FieldCPF                   Field = "cpf"
	FieldRecordID              Field = "record_id"
	FieldPurchaseDate          Field = "purchase_date"
	FieldFirstPurchaseDate     Field = "first_purchase_date"
	FieldAmount                Field = "amount"
	FieldTotalPurchases        Field = "total_purchases"
	FieldTotalValue            Field = "total_value"
	FieldAverageTicket         Field = "average_ticket"
	FieldDaysSinceLastPurchase Field = "days_since_last_purchase"
	FieldRecencyScore          Field = "recency_score"
	FieldFrequencyScore        Field = "frequency_score"
	FieldValueScore            Field = "value_score"
	FieldSegmentOverride       Field = "segment_override"
)

// Fields liste tous les champs canoniques.
var Fields = []Field{
	FieldCustomerName,
	FieldPhone,
	FieldWhatsApp,
	FieldEmail,
	FieldCPF,
	FieldRecordID,
	FieldPurchaseDate,
	FieldFirstPurchaseDate,
	FieldAmount,
	FieldTotalPurchases,
	FieldTotalValue,
	FieldAverageTicket,
	FieldDaysSinceLastPurchase,
	FieldRecencyScore,
	FieldFrequencyScore,
	FieldValueScore,
	FieldSegmentOverride,
}

// ErrMappingIncomplete : champs requis non renseignés, fatal avant toute lecture de ligne.
var ErrMappingIncomplete = eris.New("column mapping incomplete")

// ColumnMapping associe un champ canonique au libellé d'une colonne source ("" = non mappé).
type ColumnMapping map[Field]string

// Get renvoie le libellé mappé pour f, "" sinon.
func (m ColumnMapping) Get(f Field) string {
	if m == nil {
		return ""
	}
	return m[f]
}

// Has indique si f est mappé.
func (m ColumnMapping) Has(f Field) bool {
	return strings.TrimSpace(m.Get(f)) != ""
}

// Merge superpose over sur une copie de m. Une valeur vide explicite efface le champ.
func (m ColumnMapping) Merge(over ColumnMapping) ColumnMapping {
	out := make(ColumnMapping, len(m)+len(over))
	for f, label := range m {
		out[f] = label
	}
	for f, label := range over {
		if strings.TrimSpace(label) == "" {
			delete(out, f)
			continue
		}
		out[f] = label
	}
	return out
}

// Missing liste les exigences non satisfaites, dans un ordre stable.
func (m ColumnMapping) Missing() []string {
	var missing []string
	if !m.Has(FieldCustomerName) {
		missing = append(missing, string(FieldCustomerName))
	}
	if !m.Has(FieldPurchaseDate) && !m.Has(FieldDaysSinceLastPurchase) {
		missing = append(missing, string(FieldPurchaseDate)+"|"+string(FieldDaysSinceLastPurchase))
	}
	if !m.Has(FieldAmount) && !m.Has(FieldTotalValue) {
		missing = append(missing, string(FieldAmount)+"|"+string(FieldTotalValue))
	}
	return missing
}

// Validate renvoie ErrMappingIncomplete si un champ requis manque.
func (m ColumnMapping) Validate() error {
	if missing := m.Missing(); len(missing) > 0 {
		return eris.Wrapf(ErrMappingIncomplete, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ParseColumnMapping lit un mapping JSON {"customer_name": "Cliente", ...}.
// Les clés inconnues sont refusées.
func ParseColumnMapping(data []byte) (ColumnMapping, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "parse column mapping")
	}
	out := make(ColumnMapping, len(raw))
	for k, v := range raw {
		f, ok := ParseField(k)
		if !ok {
			return nil, eris.Errorf("unknown canonical field %q", k)
		}
		out[f] = v
	}
	return out, nil
}

// ParseField valide un nom de champ canonique.
func ParseField(name string) (Field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}
