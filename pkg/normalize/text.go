package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	separatorsRe = regexp.MustCompile(`[\s_\-./:()\[\]]+`)
)

// Fold met en minuscules, retire les accents et réduit les séparateurs à un espace :
// "Data_da Última-Compra" → "data da ultima compra".
func Fold(s string) string {
	s = stripDiacritics(strings.ToLower(strings.TrimSpace(s)))
	s = separatorsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripDiacritics : décomposition NFD puis suppression des marques (Mn).
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NameKey est l'identité d'un client : nom en minuscules, sans espaces de bord.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DisplayName renvoie la forme d'affichage (title case) d'une clé de nom.
func DisplayName(key string) string {
	// un Caser est à état : pas de partage entre goroutines
	return cases.Title(language.Und).String(strings.Join(strings.Fields(key), " "))
}

// CellString rend une cellule sous forme de texte nettoyé.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		return t.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
