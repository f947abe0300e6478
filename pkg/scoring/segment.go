package scoring

import (
	"strings"

	"rfv-segments/pkg/models"
	"rfv-segments/pkg/normalize"
)

// segmentRule : une ligne de la table de décision (R, F, V) → segment.
type segmentRule struct {
	Segment models.Segment
	Match   func(r, f, v int) bool
}

// segmentRules est évalué dans l'ordre, premier match gagnant. Ce qui ne matche aucune règle
// tombe dans Lost, y compris des triplets comme (3,2,2).
var segmentRules = []segmentRule{
	{models.SegmentChampions, func(r, f, v int) bool { return r >= 4 && f >= 4 && v >= 4 }},
	{models.SegmentLoyal, func(r, f, v int) bool { return r >= 3 && f >= 3 && v >= 3 }},
	{models.SegmentPotential, func(r, f, v int) bool { return r >= 4 && f <= 3 && v <= 3 }},
	{models.SegmentAtRisk, func(r, f, v int) bool { return r <= 2 && f >= 3 && v >= 3 }},
	{models.SegmentHibernating, func(r, f, v int) bool { return r <= 2 && f <= 2 && v >= 2 && v <= 4 }},
}

// Classify applique la table de décision.
func Classify(r, f, v int) models.Segment {
	for _, rule := range segmentRules {
		if rule.Match(r, f, v) {
			return rule.Segment
		}
	}
	return models.SegmentLost
}

// synonyms : sous-chaînes (forme pliée) reconnues dans un libellé de segment pré-calculé.
// Potential précède Loyal ("Potenciais Leais" contient "leais").
var synonyms = []struct {
	Segment models.Segment
	Subs    []string
}{
	{models.SegmentChampions, []string{"campeoes", "campeao", "campea", "champion"}},
	{models.SegmentPotential, []string{"potenciais leais", "potencial", "potential", "novos", "novo cliente",
		"new customer", "promissor", "promising", "recentes", "recent"}},
	{models.SegmentAtRisk, []string{"precisam atencao", "precisa atencao", "precisam de atencao", "need attention",
		"nao podem perder", "nao pode perder", "can't lose", "cant lose", "em risco", "risco", "at risk", "risk"}},
	{models.SegmentHibernating, []string{"quase dormindo", "hibernando", "hibernacao", "hibernating",
		"dormindo", "about to sleep", "adormecido"}},
	{models.SegmentLost, []string{"perdidos", "perdido", "lost", "inativos", "inativo"}},
	{models.SegmentLoyal, []string{"leais", "leal", "fieis", "fiel", "loyal"}},
}

// MatchSegment rattache un libellé libre à un segment, sans casse ni accents.
func MatchSegment(label string) (models.Segment, bool) {
	folded := normalize.Fold(label)
	if folded == "" {
		return "", false
	}
	for _, syn := range synonyms {
		for _, s := range syn.Subs {
			if strings.Contains(folded, s) {
				return syn.Segment, true
			}
		}
	}
	return "", false
}

// Resolve renvoie le segment final : le libellé pré-calculé s'il est reconnu, sinon la table.
// Le booléen indique qu'un override a été appliqué.
func Resolve(override string, r, f, v int) (models.Segment, bool) {
	computed := Classify(r, f, v)
	if s, ok := MatchSegment(override); ok {
		return s, true
	}
	return computed, false
}
