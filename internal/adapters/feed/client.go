package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polywhaler/internal/domain"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

const (
	candidatesPath = "/api/bot/candidates"
	picksPath      = "/api/bot/picks"

	// El feed es un worker compartido: nos mantenemos muy por debajo
	// de su límite real. El presupuesto por hora lo gobierna el
	// scheduler; este limiter solo evita ráfagas accidentales.
	feedRatePerSec = 2

	maxRetries    = 2
	baseRetryWait = 500 * time.Millisecond
	userAgent     = "Mozilla/5.0 (compatible; PolywhalerBot/2.0; +https://workers.dev)"
)

// Client es el cliente HTTP del feed de candidatos. Implementa
// ports.FeedProvider con auth Bearer, rate limiting y retries acotados
// para errores transitorios. Un 403 se devuelve como ports.ErrBlocked.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
}

// NewClient crea un Client contra el base URL dado.
func NewClient(base, apiKey string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 20 * time.Second},
		base:    base,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(feedRatePerSec, 2),
	}
}

// FetchCandidates consulta la ventana reciente de candidatos.
func (c *Client) FetchCandidates(ctx context.Context, q ports.CandidateQuery) ([]domain.Opportunity, error) {
	params := url.Values{}
	params.Set("windowMinutes", strconv.Itoa(q.WindowMinutes))
	params.Set("minGrade", string(q.MinGrade))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("requireMicrostructure", strconv.FormatBool(q.RequireMicrostructure))
	params.Set("marketQualityThreshold", strconv.FormatFloat(q.MarketQualityThreshold, 'f', -1, 64))
	params.Set("debug", "true")

	var resp candidatesResponse
	if err := c.do(ctx, http.MethodGet, candidatesPath+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("feed.FetchCandidates: %w", err)
	}

	if len(resp.Candidates) == 0 && resp.Debug != nil {
		slog.Debug("feed returned no candidates",
			"total_entries", resp.Debug.TotalEntries,
			"upcoming_entries", resp.Debug.UpcomingEntries,
			"dedup_dropped", resp.Debug.DedupDropped,
		)
	}

	opps := make([]domain.Opportunity, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		opps = append(opps, cand.toDomain())
	}
	return opps, nil
}

// ReportPick informa al feed de una apuesta colocada.
func (c *Client) ReportPick(ctx context.Context, pick domain.Pick) error {
	if err := c.do(ctx, http.MethodPost, picksPath, pick, nil); err != nil {
		return fmt.Errorf("feed.ReportPick: %w", err)
	}
	return nil
}

// do ejecuta una request autenticada con rate limiting y retries para
// 429/5xx. Un 403 corta inmediatamente con ports.ErrBlocked — reintentar
// contra un bloqueo activo solo empeora las cosas.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = b
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusForbidden:
			if ray := extractRayID(string(respBody)); ray != "" {
				return fmt.Errorf("%w: status 403, cloudflare ray %s", ports.ErrBlocked, ray)
			}
			return fmt.Errorf("%w: status 403", ports.ErrBlocked)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries: %s", resp.StatusCode, maxRetries, respBody)
			}
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 400:
			return fmt.Errorf("client error %d: %s", resp.StatusCode, respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
