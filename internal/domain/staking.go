package domain

import "math"

// SkipReason etiqueta por qué el staking decidió no apostar.
type SkipReason string

const (
	SkipLowROI       SkipReason = "low_roi"
	SkipNegativeEdge SkipReason = "negative_edge"
	SkipBelowFloor   SkipReason = "below_floor"
	SkipBadPrice     SkipReason = "bad_price"
)

// StakeDecision es el resultado del cálculo de stake: aceptar con un
// importe, o skip con una razón. Nunca se persiste por sí misma.
type StakeDecision struct {
	Accepted bool
	Amount   float64
	Reason   SkipReason
}

// Accept construye una decisión aceptada con el importe dado.
func Accept(amount float64) StakeDecision {
	return StakeDecision{Accepted: true, Amount: amount}
}

// Skip construye una decisión de skip con la razón dada.
func Skip(reason SkipReason) StakeDecision {
	return StakeDecision{Reason: reason}
}

// StakeParams son los inputs del cálculo de stake.
type StakeParams struct {
	Bankroll        float64
	TrueProb        float64 // probabilidad estimada del lado apostado
	Price           float64 // precio implícito del lado (0,1)
	KellyFraction   float64 // escala sobre el Kelly completo (p.ej. 0.25)
	MinStake        float64
	MaxStake        float64
	FixedStake      float64 // > 0 → ignora Kelly y usa este importe
	LowROIThreshold float64 // precio a partir del cual el ROI no compensa
}

// ComputeStake decide cuánto apostar. Función pura: sin I/O ni estado.
//
//  1. price >= lowROIThreshold → Skip(low_roi): el precio ya es eficiente.
//  2. fixedStake > 0 → candidato fijo. Si no, Kelly completo escalado
//     por kellyFraction; edge negativo → Skip(negative_edge).
//  3. Clamp a [minStake, maxStake]; por debajo del suelo → Skip(below_floor).
func ComputeStake(p StakeParams) StakeDecision {
	if p.Price >= p.LowROIThreshold {
		return Skip(SkipLowROI)
	}
	if p.Price <= 0 || p.Price >= 1 {
		return Skip(SkipBadPrice)
	}

	var candidate float64
	if p.FixedStake > 0 {
		candidate = p.FixedStake
	} else {
		f := KellyStar(p.TrueProb, p.Price)
		if f <= 0 {
			return Skip(SkipNegativeEdge)
		}
		candidate = p.Bankroll * f * p.KellyFraction
	}

	if math.IsNaN(candidate) || math.IsInf(candidate, 0) {
		return Skip(SkipBadPrice)
	}
	if candidate > p.MaxStake {
		candidate = p.MaxStake
	}
	if candidate < p.MinStake {
		return Skip(SkipBelowFloor)
	}
	return Accept(candidate)
}

// KellyStar devuelve la fracción de Kelly completa f* para un resultado
// binario a precio `price` con probabilidad estimada `trueProb`:
//
//	f* = (b·p − q) / b, con b = 1/price − 1, q = 1 − p
//
// Devuelve 0 si el precio es inválido o el edge no es positivo.
func KellyStar(trueProb, price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	b := 1.0/price - 1.0
	q := 1.0 - trueProb
	numerator := b*trueProb - q
	if numerator <= 0 || b <= 0 {
		return 0
	}
	return numerator / b
}
