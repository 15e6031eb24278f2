package ports

import (
	"context"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// OrderExecutor coloca órdenes para decisiones aceptadas. Dos
// implementaciones: simulada (paper) y live con firma EIP-712 contra
// el CLOB. El modo se elige una vez al arrancar, nunca por llamada.
type OrderExecutor interface {
	// PlaceOrder resuelve el token del lado pedido y envía una orden
	// de mercado BUY por req.Stake USDC.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderResult, error)

	// Preflight valida credenciales y conectividad sin colocar nada.
	// conditionID opcional: si viene, además resuelve su token y
	// comprueba que el mercado responde.
	Preflight(ctx context.Context, conditionID string) error

	// Mode devuelve "paper" o "live".
	Mode() string
}
