package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polywhaler/internal/domain"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

// Razones de skip propias del pipeline (las de staking viven en domain).
const (
	reasonMissingID     = "missing_condition_id"
	reasonBelowGrade    = "below_grade"
	reasonStale         = "stale"
	reasonWindowClosed  = "window_closed"
	reasonAlreadyPlaced = "already_placed"
	reasonLedgerError   = "ledger_error"
	reasonCycleCap      = "cycle_cap"
)

// Tope propio de un dispatch una vez en vuelo: ya no responde a la
// cancelación externa, pero tampoco puede colgarse indefinidamente.
const dispatchTimeout = 30 * time.Second

// PipelineConfig son los umbrales y parámetros de staking del pipeline.
type PipelineConfig struct {
	MinGrade    domain.Grade
	Freshness   time.Duration // máximo desde DiscoveredAt; 0 = sin filtro
	MaxPerCycle int           // tope de dispatches por ciclo

	Bankroll        float64
	KellyFraction   float64
	MinStake        float64
	MaxStake        float64
	FixedStake      float64
	LowROIThreshold float64
}

// Pipeline evalúa candidatos uno a uno: filtros → ledger → staking →
// dispatch → commit → trade log. Los fallos por candidato quedan
// aislados: un error nunca aborta el procesamiento del resto del ciclo.
type Pipeline struct {
	cfg      PipelineConfig
	ledger   ports.Ledger
	executor ports.OrderExecutor
	trades   ports.TradeLog
	feed     ports.FeedProvider // para ReportPick; puede ser nil en tests
	gate     *TimeGate
}

// NewPipeline crea un Pipeline con todas las dependencias inyectadas.
func NewPipeline(
	cfg PipelineConfig,
	ledger ports.Ledger,
	executor ports.OrderExecutor,
	trades ports.TradeLog,
	feed ports.FeedProvider,
	gate *TimeGate,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		ledger:   ledger,
		executor: executor,
		trades:   trades,
		feed:     feed,
		gate:     gate,
	}
}

// Process evalúa los candidatos de un ciclo y devuelve los resultados
// terminales. El orden de los candidatos es el del feed (ya viene
// rankeado); al alcanzar MaxPerCycle el resto se salta, no se difiere —
// si siguen presentes el próximo ciclo, el dedupe los filtrará.
//
// Un stop se observa ENTRE candidatos, nunca a mitad de un dispatch:
// la cancelación corta la evaluación del resto del lote, pero la orden
// en vuelo (y su commit) siempre termina.
func (p *Pipeline) Process(ctx context.Context, opps []domain.Opportunity, now time.Time) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(opps))
	dispatched := 0

	for _, opp := range opps {
		if ctx.Err() != nil {
			slog.Info("stop observed, leaving remaining candidates unevaluated",
				"remaining", len(opps)-len(outcomes))
			break
		}
		if dispatched >= p.cfg.MaxPerCycle {
			outcomes = append(outcomes, p.skip(opp, reasonCycleCap, now))
			continue
		}
		out := p.evaluate(ctx, opp, now)
		if out.Decision == domain.DecisionDispatched {
			dispatched++
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// evaluate corre un candidato por todas las etapas del pipeline.
func (p *Pipeline) evaluate(ctx context.Context, opp domain.Opportunity, now time.Time) domain.Outcome {
	if opp.ConditionID == "" {
		return p.skip(opp, reasonMissingID, now)
	}
	if !opp.Grade.AtLeast(p.cfg.MinGrade) {
		return p.skip(opp, reasonBelowGrade, now)
	}
	if p.cfg.Freshness > 0 && !opp.DiscoveredAt.IsZero() && now.Sub(opp.DiscoveredAt) > p.cfg.Freshness {
		return p.skip(opp, reasonStale, now)
	}
	if !p.gate.IsOpen(now) {
		return p.skip(opp, reasonWindowClosed, now)
	}

	live, err := p.ledger.IsLive(ctx, opp.Identity(), now)
	if err != nil {
		// Sin lectura fiable del ledger no se despacha: mejor perder
		// el candidato este ciclo que arriesgar un doble dispatch.
		slog.Error("ledger read failed, skipping candidate",
			"identity", opp.Identity(), "err", err)
		return p.skip(opp, reasonLedgerError, now)
	}
	if live {
		return p.skip(opp, reasonAlreadyPlaced, now)
	}

	dec := domain.ComputeStake(domain.StakeParams{
		Bankroll:        p.cfg.Bankroll,
		TrueProb:        opp.TrueProb(),
		Price:           opp.Price,
		KellyFraction:   p.cfg.KellyFraction,
		MinStake:        p.cfg.MinStake,
		MaxStake:        p.cfg.MaxStake,
		FixedStake:      p.cfg.FixedStake,
		LowROIThreshold: p.cfg.LowROIThreshold,
	})
	if !dec.Accepted {
		return p.skip(opp, string(dec.Reason), now)
	}

	return p.dispatch(ctx, opp, dec.Amount, now)
}

// dispatch coloca la orden y, solo con éxito confirmado, hace el commit
// del ledger ANTES de escribir el trade log: tras un crash entre ambos,
// el reinicio ve la entrada y no re-despacha. Un fallo ambiguo de
// dispatch no comitea — el candidato puede reintentarse otro ciclo.
//
// La orden y su commit corren desacoplados de la cancelación externa:
// abortar un POST ya enviado dejaría una orden colocada sin entrada en
// el ledger, que es exactamente el doble dispatch que el ledger evita.
func (p *Pipeline) dispatch(ctx context.Context, opp domain.Opportunity, stake float64, now time.Time) domain.Outcome {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	res, err := p.executor.PlaceOrder(opCtx, domain.PlaceOrderRequest{
		ConditionID: opp.ConditionID,
		Side:        opp.Side,
		SideLabelA:  labelFor(opp, "A"),
		SideLabelB:  labelFor(opp, "B"),
		Price:       opp.Price,
		Stake:       stake,
	})
	if err != nil {
		slog.Error("dispatch failed",
			"identity", opp.Identity(), "stake", stake, "err", err)
		p.append(opp, domain.DecisionFailed, "", stake, "", err.Error(), now)
		return domain.Outcome{
			Opportunity: opp,
			Decision:    domain.DecisionFailed,
			Stake:       stake,
			Err:         err.Error(),
		}
	}

	if err := p.ledger.Commit(opCtx, opp.Identity(), now, opp.EventTime); err != nil {
		// La orden ya está fuera: esto es lo peor que puede pasar.
		// Se loguea con máximo nivel; el trade log igual registra el
		// dispatch para que la auditoría lo detecte.
		slog.Error("LEDGER COMMIT FAILED AFTER DISPATCH — manual review required",
			"identity", opp.Identity(), "order_id", res.OrderID, "err", err)
	}

	p.append(opp, domain.DecisionDispatched, "", stake, res.OrderID, "", now)

	if p.feed != nil {
		if err := p.feed.ReportPick(opCtx, domain.Pick{
			ConditionID: opp.ConditionID,
			MarketTitle: opp.MarketTitle,
			Side:        opp.Side,
			Grade:       opp.Grade,
			Price:       opp.Price,
			Stake:       stake,
			SignalScore: opp.SignalScore,
			EventTime:   opp.EventTime,
		}); err != nil {
			slog.Warn("pick report failed", "identity", opp.Identity(), "err", err)
		}
	}

	slog.Info("dispatched",
		"market", opp.MarketTitle,
		"side", opp.Side,
		"grade", opp.Grade,
		"price", opp.Price,
		"stake", stake,
		"order_id", res.OrderID,
		"mode", p.executor.Mode(),
	)
	return domain.Outcome{
		Opportunity: opp,
		Decision:    domain.DecisionDispatched,
		Stake:       stake,
		OrderID:     res.OrderID,
	}
}

// skip registra un skip en el trade log y devuelve el outcome.
func (p *Pipeline) skip(opp domain.Opportunity, reason string, now time.Time) domain.Outcome {
	p.append(opp, domain.DecisionSkipped, reason, 0, "", "", now)
	return domain.Outcome{Opportunity: opp, Decision: domain.DecisionSkipped, Reason: reason}
}

// append escribe la línea del trade log. Un fallo de I/O aquí no puede
// tumbar el ciclo: se loguea y se sigue.
func (p *Pipeline) append(opp domain.Opportunity, decision, reason string, stake float64, orderID, errMsg string, now time.Time) {
	rec := domain.TradeRecord{
		ID:          uuid.New().String(),
		Time:        now.UTC(),
		Identity:    opp.Identity(),
		ConditionID: opp.ConditionID,
		Market:      opp.MarketTitle,
		Side:        opp.Side,
		Grade:       opp.Grade,
		Price:       opp.Price,
		Decision:    decision,
		Reason:      reason,
		Stake:       stake,
		Mode:        p.executor.Mode(),
		OrderID:     orderID,
		Error:       errMsg,
	}
	if err := p.trades.Append(rec); err != nil {
		slog.Error("trade log append failed", "identity", opp.Identity(), "err", err)
	}
}

func labelFor(opp domain.Opportunity, side string) string {
	if opp.Side == side {
		return opp.SideLabel
	}
	return ""
}
