package polymarket

// trading.go — live execution of accepted decisions via the CLOB API.
//
// Implements ports.OrderExecutor. Each dispatch is a fill-or-kill
// market BUY: the bot takes the quoted price or nothing — resting
// orders would outlive the signal they were placed on.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

type clobBalanceAllowanceResponse struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

type clobOKResponse struct {
	// El endpoint raíz devuelve un body trivial; solo importa el status.
	Message string `json:"message"`
}

// TradingClient implements ports.OrderExecutor against the real CLOB.
type TradingClient struct {
	auth     *AuthClient
	resolver *tokenResolver
}

// NewTradingClient creates a live executor on top of an AuthClient.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{
		auth:     auth,
		resolver: newTokenResolver(auth.Client),
	}
}

// Mode identifies this executor as live for logs and trade records.
func (tc *TradingClient) Mode() string { return "live" }

// PlaceOrder resolves the token for the requested side, signs a FOK
// market BUY for req.Stake USDC and posts it to the CLOB.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderResult, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: creds: %w", err)
	}

	tokenID, err := tc.resolver.Resolve(ctx, req.ConditionID, req.Side, req.SideLabelA, req.SideLabelB)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: %w", err)
	}

	negRisk, err := tc.isNegRisk(ctx, tokenID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(tokenID, req.Price, req.Stake, negRisk)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "FOK",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.OrderResult{}, fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	return domain.OrderResult{OrderID: resp.OrderID, Status: resp.Status}, nil
}

// Preflight validates connectivity and credentials without dispatching:
// server reachable, creds derivable, collateral balance readable, and —
// if conditionID is given — the market's token resolvable.
func (tc *TradingClient) Preflight(ctx context.Context, conditionID string) error {
	var ok clobOKResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, tc.auth.clobBase+"/", &ok); err != nil {
		return fmt.Errorf("preflight: clob unreachable: %w", err)
	}

	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	var bal clobBalanceAllowanceResponse
	path := "/balance-allowance?asset_type=COLLATERAL"
	if err := tc.auth.doL2(ctx, http.MethodGet, path, nil, &bal); err != nil {
		return fmt.Errorf("preflight: balance-allowance: %w", err)
	}

	if conditionID != "" {
		tokenID, err := tc.resolver.Resolve(ctx, conditionID, "A", "", "")
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		if _, err := tc.isNegRisk(ctx, tokenID); err != nil {
			return fmt.Errorf("preflight: market check %s: %w", conditionID, err)
		}
	}
	return nil
}

// isNegRisk queries the CLOB to determine if a token uses the NegRisk adapter.
func (tc *TradingClient) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)

	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}
	return resp.NegRisk, nil
}
