package domain

import "time"

// Grade es la categoría de calidad que el feed asigna a cada candidato.
// Ordenadas: A+ > A > B > C > D. Un grade desconocido queda por debajo de D.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
)

// gradeRanks define el orden total de los grades.
var gradeRanks = map[Grade]int{
	GradeAPlus: 5,
	GradeA:     4,
	GradeB:     3,
	GradeC:     2,
	GradeD:     1,
}

// gradeProbs son las probabilidades estimadas por grade cuando el feed
// no aporta una probabilidad explícita. Calibradas contra el histórico
// de picks del upstream.
var gradeProbs = map[Grade]float64{
	GradeAPlus: 0.60,
	GradeA:     0.57,
	GradeB:     0.54,
	GradeC:     0.52,
	GradeD:     0.50,
}

// Rank devuelve la posición del grade en el orden total (0 = desconocido).
func (g Grade) Rank() int {
	return gradeRanks[g]
}

// AtLeast devuelve true si g es igual o mejor que min.
func (g Grade) AtLeast(min Grade) bool {
	return g.Rank() >= min.Rank()
}

// Prob devuelve la probabilidad estimada de éxito para el grade.
func (g Grade) Prob() float64 {
	if p, ok := gradeProbs[g]; ok {
		return p
	}
	return 0.50
}

// Opportunity es un candidato a apuesta publicado por el feed.
// Inmutable una vez leído; no sobrevive al ciclo de poll actual.
type Opportunity struct {
	ConditionID  string
	MarketTitle  string
	EventTitle   string
	Side         string // "A" | "B" — lado sharp según el feed
	SideLabel    string // label legible del lado (p.ej. "Lakers")
	Price        float64
	Grade        Grade
	SignalScore  float64
	EventTime    time.Time // cuándo resuelve/empieza el evento; zero si desconocido
	DiscoveredAt time.Time // cuándo el feed detectó la señal; zero si no viene
}

// Identity es la clave de dedupe: mismo mercado + mismo lado = misma apuesta.
func (o Opportunity) Identity() string {
	return o.ConditionID + ":" + o.Side
}

// TrueProb devuelve la probabilidad estimada del lado sharp.
func (o Opportunity) TrueProb() float64 {
	return o.Grade.Prob()
}
