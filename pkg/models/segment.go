package models

// Segment est l'un des six segments stratégiques.
type Segment string

const (
	SegmentChampions   Segment = "Champions"
	SegmentLoyal       Segment = "Loyal"
	SegmentPotential   Segment = "Potential"
	SegmentAtRisk      Segment = "At Risk"
	SegmentHibernating Segment = "Hibernating"
	SegmentLost        Segment = "Lost"
)

// Segments liste les segments dans l'ordre d'affichage.
var Segments = []Segment{
	SegmentChampions,
	SegmentLoyal,
	SegmentPotential,
	SegmentAtRisk,
	SegmentHibernating,
	SegmentLost,
}

// Priority renvoie le rang d'affichage (1 = Champions … 6 = Lost), 0 si inconnu.
// Ne sert pas à la classification.
func (s Segment) Priority() int {
	for i, seg := range Segments {
		if seg == s {
			return i + 1
		}
	}
	return 0
}

// Valid indique si s est l'un des six segments.
func (s Segment) Valid() bool {
	return s.Priority() > 0
}

// ParseSegment accepte le nom exact d'un segment.
func ParseSegment(name string) (Segment, bool) {
	s := Segment(name)
	return s, s.Valid()
}

// SegmentBreakdown compte les enregistrements par segment ; les six clés sont toujours présentes.
func SegmentBreakdown(records []CustomerRFVRecord) map[Segment]int {
	out := make(map[Segment]int, len(Segments))
	for _, s := range Segments {
		out[s] = 0
	}
	for _, r := range records {
		out[r.Segment]++
	}
	return out
}
