package polymarket

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// Simulated implementa ports.OrderExecutor sin efecto de red: cada
// dispatch es un éxito determinista con un order ID local. Es el modo
// paper del bot; el pipeline no distingue entre este y el live.
type Simulated struct{}

// NewSimulated crea el executor paper.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Mode identifica este executor como paper.
func (s *Simulated) Mode() string { return "paper" }

// PlaceOrder simula la colocación: valida lo mínimo y devuelve éxito.
func (s *Simulated) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.OrderResult, error) {
	if req.ConditionID == "" {
		return domain.OrderResult{}, fmt.Errorf("simulated: empty condition id")
	}
	if req.Stake <= 0 {
		return domain.OrderResult{}, fmt.Errorf("simulated: invalid stake %.4f", req.Stake)
	}
	return domain.OrderResult{
		OrderID:   uuid.New().String(),
		Status:    "matched",
		Simulated: true,
	}, nil
}

// Preflight en modo paper no tiene nada que validar.
func (s *Simulated) Preflight(context.Context, string) error {
	return nil
}
