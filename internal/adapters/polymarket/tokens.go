package polymarket

// tokens.go — resolución conditionID + lado → token_id del CLOB.
//
// Primero CLOB /markets/{conditionID}; si no devuelve tokens, fallback
// a Gamma /markets?condition_ids=. El resultado se cachea en memoria:
// los tokens de un mercado no cambian durante su vida.

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type marketToken struct {
	Outcome string
	TokenID string
}

type clobMarketResponse struct {
	Tokens []struct {
		Outcome string `json:"outcome"`
		TokenID string `json:"token_id"`
	} `json:"tokens"`
}

type gammaMarketsResponse []struct {
	ConditionID string `json:"conditionId"`
	Tokens      []struct {
		Outcome string `json:"outcome"`
		TokenID string `json:"token_id"`
	} `json:"tokens"`
}

// tokenResolver cachea el mapeo conditionID → tokens.
type tokenResolver struct {
	client *Client
	mu     sync.Mutex
	cache  map[string][]marketToken
}

func newTokenResolver(client *Client) *tokenResolver {
	return &tokenResolver{client: client, cache: make(map[string][]marketToken)}
}

// Resolve devuelve el token_id del lado pedido. side es "A" o "B";
// labelA/labelB son los labels legibles que publica el feed y se
// matchean contra los outcomes del mercado (exacto primero, luego
// substring). Como último recurso, en binarios A = tokens[0], B = [1].
func (r *tokenResolver) Resolve(ctx context.Context, conditionID, side, labelA, labelB string) (string, error) {
	if conditionID == "" {
		return "", fmt.Errorf("polymarket.Resolve: empty condition id")
	}

	tokens, err := r.tokens(ctx, conditionID)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("polymarket.Resolve: no tokens for %s", conditionID)
	}

	target := labelA
	if side == "B" {
		target = labelB
	}
	if target != "" {
		normalized := normalizeOutcome(target)
		for _, t := range tokens {
			if normalizeOutcome(t.Outcome) == normalized {
				return t.TokenID, nil
			}
		}
		for _, t := range tokens {
			if strings.Contains(normalizeOutcome(t.Outcome), normalized) {
				return t.TokenID, nil
			}
		}
	}

	if len(tokens) == 2 {
		switch side {
		case "A":
			return tokens[0].TokenID, nil
		case "B":
			return tokens[1].TokenID, nil
		}
	}
	return "", fmt.Errorf("polymarket.Resolve: no token match for %s side %s", conditionID, side)
}

// tokens devuelve los tokens del mercado, cacheados.
func (r *tokenResolver) tokens(ctx context.Context, conditionID string) ([]marketToken, error) {
	r.mu.Lock()
	if cached, ok := r.cache[conditionID]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	tokens := r.fromCLOB(ctx, conditionID)
	if len(tokens) == 0 {
		tokens = r.fromGamma(ctx, conditionID)
	}

	if len(tokens) > 0 {
		r.mu.Lock()
		r.cache[conditionID] = tokens
		r.mu.Unlock()
	}
	return tokens, nil
}

func (r *tokenResolver) fromCLOB(ctx context.Context, conditionID string) []marketToken {
	url := fmt.Sprintf("%s/markets/%s", r.client.clobBase, conditionID)

	var resp clobMarketResponse
	if err := r.client.get(ctx, r.client.clobLimiter, url, &resp); err != nil {
		return nil
	}

	tokens := make([]marketToken, 0, len(resp.Tokens))
	for _, t := range resp.Tokens {
		if t.Outcome != "" && t.TokenID != "" {
			tokens = append(tokens, marketToken{Outcome: t.Outcome, TokenID: t.TokenID})
		}
	}
	return tokens
}

func (r *tokenResolver) fromGamma(ctx context.Context, conditionID string) []marketToken {
	url := fmt.Sprintf("%s/markets?condition_ids=%s&active=true&limit=1", r.client.gammaBase, conditionID)

	var resp gammaMarketsResponse
	if err := r.client.get(ctx, r.client.gammaLimiter, url, &resp); err != nil {
		return nil
	}
	if len(resp) == 0 {
		return nil
	}

	tokens := make([]marketToken, 0, len(resp[0].Tokens))
	for _, t := range resp[0].Tokens {
		if t.Outcome != "" && t.TokenID != "" {
			tokens = append(tokens, marketToken{Outcome: t.Outcome, TokenID: t.TokenID})
		}
	}
	return tokens
}

// normalizeOutcome colapsa espacios y case para comparar labels.
func normalizeOutcome(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
