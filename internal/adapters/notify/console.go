package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// Console implementa ports.Notifier: imprime el resultado de cada
// ciclo para el operador. Modo compacto (una línea) o tabla completa.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCycle imprime los outcomes del ciclo en el modo configurado.
func (c *Console) NotifyCycle(_ context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		fmt.Fprintf(c.out, "[%s] no candidates this cycle\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printFull(outcomes)
	} else {
		c.printCompact(outcomes)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(outcomes []domain.Outcome) {
	now := time.Now().Format("15:04:05")
	dispatched, skipped, failed := countByDecision(outcomes)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d cands → bet:%d skip:%d fail:%d",
		now, len(outcomes), dispatched, skipped, failed)

	shown := 0
	for _, out := range outcomes {
		if out.Decision != domain.DecisionDispatched {
			continue
		}
		if shown >= 4 {
			break
		}
		name := compactName(out.Opportunity.MarketTitle, 25)
		fmt.Fprintf(&sb, " | [%s]%s %s@%.2f $%.2f",
			out.Opportunity.Grade, name, out.Opportunity.SideLabel,
			out.Opportunity.Price, out.Stake)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla con un candidato por fila.
func (c *Console) printFull(outcomes []domain.Outcome) {
	now := time.Now().Format("15:04:05")
	dispatched, skipped, failed := countByDecision(outcomes)

	fmt.Fprintf(c.out, "\n[%s] %d candidates — bet:%d skip:%d fail:%d\n",
		now, len(outcomes), dispatched, skipped, failed)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Grade", "Market", "Side", "Price", "Stake", "Decision", "Detail")

	for i, out := range outcomes {
		detail := out.Reason
		switch out.Decision {
		case domain.DecisionDispatched:
			detail = out.OrderID
		case domain.DecisionFailed:
			detail = truncate(out.Err, 30)
		}

		stakeLabel := "-"
		if out.Stake > 0 {
			stakeLabel = fmt.Sprintf("$%.2f", out.Stake)
		}

		table.Append(
			fmt.Sprintf("%d", i+1),
			string(out.Opportunity.Grade),
			marketLabel(out.Opportunity),
			out.Opportunity.Side,
			fmt.Sprintf("%.4f", out.Opportunity.Price),
			stakeLabel,
			out.Decision,
			detail,
		)
	}

	table.Render()
}

// --- helpers ---

func countByDecision(outcomes []domain.Outcome) (dispatched, skipped, failed int) {
	for _, out := range outcomes {
		switch out.Decision {
		case domain.DecisionDispatched:
			dispatched++
		case domain.DecisionSkipped:
			skipped++
		case domain.DecisionFailed:
			failed++
		}
	}
	return
}

func marketLabel(opp domain.Opportunity) string {
	if opp.MarketTitle != "" {
		return truncate(opp.MarketTitle, 38)
	}
	if len(opp.ConditionID) > 14 {
		return opp.ConditionID[:12] + "..."
	}
	return opp.ConditionID
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
