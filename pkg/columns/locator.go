package columns

import (
	"strings"

	"rfv-segments/pkg/normalize"
)

// MaxHeaderScan borne le nombre de lignes examinées par LocateHeader.
const MaxHeaderScan = 15

// headerKeywords : mots attendus dans une ligne d'en-têtes (forme pliée, sans accents).
var headerKeywords = []string{
	"nome", "name", "cliente", "customer", "client",
	"data", "date",
	"valor", "value", "total", "amount",
	"email", "e mail",
	"telefone", "phone", "celular", "whatsapp",
	"compra", "purchase",
}

// LocateHeader renvoie l'index (base 0) de la ligne d'en-têtes la plus probable parmi les
// MaxHeaderScan premières. Une ligne candidate a au moins deux cellules texte non vides et
// au moins une cellule contenant un mot-clé. Repli : 0.
func LocateHeader(rows [][]any) int {
	limit := len(rows)
	if limit > MaxHeaderScan {
		limit = MaxHeaderScan
	}
	for i := 0; i < limit; i++ {
		if looksLikeHeader(rows[i]) {
			return i
		}
	}
	return 0
}

func looksLikeHeader(row []any) bool {
	textCells := 0
	keywordHit := false
	for _, cell := range row {
		s, ok := cell.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		textCells++
		if !keywordHit && containsKeyword(normalize.Fold(s)) {
			keywordHit = true
		}
	}
	return textCells >= 2 && keywordHit
}

func containsKeyword(folded string) bool {
	for _, kw := range headerKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
