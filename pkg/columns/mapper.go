package columns

import (
	"regexp"
	"strings"

	"rfv-segments/pkg/models"
	"rfv-segments/pkg/normalize"
)

var (
	numericLabelRe     = regexp.MustCompile(`^[\d\s.,]+$`)
	placeholderLabelRe = regexp.MustCompile(`(?i)^__EMPTY(_\d+)?$`)
	genericLabelRe     = regexp.MustCompile(`^(column|coluna|col|unnamed|field|campo) ?\d+$`)
)

// predicate s'applique à un libellé déjà plié (minuscules, sans accents, séparateurs = espace).
type predicate func(label string) bool

// rule associe un champ canonique à son prédicat.
type rule struct {
	Field models.Field
	Match predicate
}

// rules est évalué dans l'ordre pour chaque libellé ; le premier champ libre qui matche gagne.
// Les champs spécifiques précèdent les génériques ("Total de Compras" avant "total").
var rules = []rule{
	{models.FieldSegmentOverride, phrase("segment")},
	{models.FieldRecencyScore, scoreOf("r", "recencia", "recency")},
	{models.FieldFrequencyScore, scoreOf("f", "frequencia", "frequency")},
	{models.FieldValueScore, anyOf(scoreOf("v", "valor", "value"), scoreOf("m", "monetario", "monetary"))},
	{models.FieldDaysSinceLastPurchase, phrase("dias desde", "dias sem compra", "dias da ultima", "dias ultima", "days since", "recencia", "recency")},
	{models.FieldFirstPurchaseDate, phrase("primeira compra", "primeiro pedido", "first purchase", "first order", "cliente desde", "customer since")},
	{models.FieldTotalPurchases, phrase("total de compras", "total compras", "qtd compras", "qtd de compras", "quantidade de compras",
		"numero de compras", "num compras", "total de pedidos", "total pedidos", "qtd pedidos", "quantidade de pedidos",
		"numero de pedidos", "total purchases", "purchase count", "order count", "frequencia", "frequency")},
	{models.FieldAverageTicket, phrase("ticket", "average order", "aov", "valor medio")},
	{models.FieldTotalValue, phrase("total gasto", "valor total gasto", "valor acumulado", "total acumulado", "total spent",
		"lifetime value", "ltv", "total value", "receita total", "faturamento total", "monetario", "monetary")},
	{models.FieldWhatsApp, anyOf(phrase("whatsapp", "whats"), word("wpp", "zap"))},
	{models.FieldPhone, anyOf(phrase("telefone", "phone", "celular", "fone", "mobile"), word("tel"))},
	{models.FieldEmail, phrase("email", "e mail", "correio eletronico")},
	{models.FieldCPF, anyOf(phrase("cpf", "cnpj", "documento", "tax id"), word("doc"))},
	{models.FieldRecordID, allOf(
		anyOf(word("id", "codigo", "cod", "code", "registro", "matricula"), phrase("customer id", "client id")),
		not(phrase("pedido", "order", "venda", "nota", "produto", "product", "sku")),
	)},
	{models.FieldCustomerName, phrase("nome", "name", "cliente", "customer", "client", "comprador", "consumidor", "razao social")},
	{models.FieldPurchaseDate, allOf(
		anyOf(word("data", "date", "dt", "dia", "quando"), phrase("ultima compra", "last purchase", "purchase date", "order date", "emissao")),
		not(phrase("valor", "value", "amount", "total")),
	)},
	{models.FieldAmount, phrase("valor", "value", "amount", "total", "preco", "price", "montante", "receita", "faturamento", "venda", "vlr")},
}

// MapColumns produit le mapping par défaut : un seul passage sur les libellés, premier match gagnant.
// Chaque libellé ne remplit qu'un champ ; un champ rempli n'est jamais réattribué.
func MapColumns(labels []string) models.ColumnMapping {
	mapping := make(models.ColumnMapping)
	for _, label := range labels {
		if !IsCandidate(label) {
			continue
		}
		folded := normalize.Fold(label)
		for _, r := range rules {
			if mapping.Has(r.Field) {
				continue
			}
			if r.Match(folded) {
				mapping[r.Field] = label
				break
			}
		}
	}
	return mapping
}

// IsCandidate exclut les libellés vides, purement numériques ou générés ("__EMPTY_3", "Column 4").
func IsCandidate(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" || numericLabelRe.MatchString(label) || placeholderLabelRe.MatchString(label) {
		return false
	}
	return !genericLabelRe.MatchString(normalize.Fold(label))
}

// Recognizable indique si au moins un libellé candidat contient un mot-clé d'en-tête.
func Recognizable(labels []string) bool {
	for _, l := range labels {
		if IsCandidate(l) && containsKeyword(normalize.Fold(l)) {
			return true
		}
	}
	return false
}

func phrase(subs ...string) predicate {
	return func(label string) bool {
		for _, s := range subs {
			if strings.Contains(label, s) {
				return true
			}
		}
		return false
	}
}

func word(words ...string) predicate {
	return func(label string) bool {
		for _, tok := range strings.Fields(label) {
			for _, w := range words {
				if tok == w {
					return true
				}
			}
		}
		return false
	}
}

func exact(labels ...string) predicate {
	return func(label string) bool {
		for _, l := range labels {
			if label == l {
				return true
			}
		}
		return false
	}
}

func anyOf(ps ...predicate) predicate {
	return func(label string) bool {
		for _, p := range ps {
			if p(label) {
				return true
			}
		}
		return false
	}
}

func allOf(ps ...predicate) predicate {
	return func(label string) bool {
		for _, p := range ps {
			if !p(label) {
				return false
			}
		}
		return true
	}
}

func not(p predicate) predicate {
	return func(label string) bool { return !p(label) }
}

// scoreOf reconnaît un score pré-calculé : "R", "Score R", "R (Recência)", "Recência Score", "Nota Recência".
func scoreOf(letter string, names ...string) predicate {
	scoreWords := phrase("score", "nota", "pontuacao", "pontos")
	named := phrase(names...)
	return anyOf(
		exact(letter, letter+" score", "score "+letter, "nota "+letter),
		allOf(word(letter), named),
		allOf(named, scoreWords),
	)
}
