package domain

import "time"

// Decisiones terminales que se registran en el trade log.
const (
	DecisionDispatched = "dispatched"
	DecisionSkipped    = "skipped"
	DecisionFailed     = "failed"
)

// PlaceOrderRequest es lo que el pipeline pide al executor.
// El executor resuelve internamente el token CLOB del lado pedido.
type PlaceOrderRequest struct {
	ConditionID string
	Side        string // "A" | "B"
	SideLabelA  string
	SideLabelB  string
	Price       float64
	Stake       float64 // USDC
}

// OrderResult es la respuesta del executor a un dispatch.
type OrderResult struct {
	OrderID   string
	Status    string
	Simulated bool
}

// TradeRecord es una línea del trade log: un resultado terminal del
// pipeline (dispatch, skip o fallo) por candidato.
type TradeRecord struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Identity    string    `json:"identity"`
	ConditionID string    `json:"conditionId"`
	Market      string    `json:"market,omitempty"`
	Side        string    `json:"side"`
	Grade       Grade     `json:"grade"`
	Price       float64   `json:"price"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason,omitempty"`
	Stake       float64   `json:"stake,omitempty"`
	Mode        string    `json:"mode"`
	OrderID     string    `json:"orderId,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Pick es el resumen de una apuesta colocada que se reporta al feed
// (best-effort, para trazabilidad upstream).
type Pick struct {
	ConditionID string    `json:"conditionId"`
	MarketTitle string    `json:"marketTitle"`
	Side        string    `json:"sharpSide"`
	Grade       Grade     `json:"grade"`
	Price       float64   `json:"price"`
	Stake       float64   `json:"stake"`
	SignalScore float64   `json:"signalScore"`
	EventTime   time.Time `json:"eventTime,omitempty"`
}

// Outcome es el resultado de evaluar un candidato en un ciclo.
// Lo consume el notifier de consola; no se persiste.
type Outcome struct {
	Opportunity Opportunity
	Decision    string
	Reason      string
	Stake       float64
	OrderID     string
	Err         string
}
