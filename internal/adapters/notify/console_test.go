package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywhaler/internal/adapters/notify"
	"github.com/alejandrodnm/polywhaler/internal/domain"
)

func makeOutcome(market, decision, reason string, stake float64) domain.Outcome {
	return domain.Outcome{
		Opportunity: domain.Opportunity{
			ConditionID: "0xtest",
			MarketTitle: market,
			Side:        "A",
			SideLabel:   "Lakers",
			Price:       0.48,
			Grade:       domain.GradeAPlus,
		},
		Decision: decision,
		Reason:   reason,
		Stake:    stake,
		OrderID:  "ord-1",
	}
}

func TestConsole_NotifyCycle_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	outcomes := []domain.Outcome{
		makeOutcome("Lakers vs Celtics", domain.DecisionDispatched, "", 42.5),
		makeOutcome("Will BTC hit 100k?", domain.DecisionSkipped, "already_placed", 0),
	}

	err := n.NotifyCycle(context.Background(), outcomes)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2 cands")
	assert.Contains(t, out, "bet:1 skip:1 fail:0")
	assert.Contains(t, out, "Lakers vs Celtics")
	assert.Contains(t, out, "$42.50")
	// El modo compacto solo enseña los dispatches.
	assert.NotContains(t, out, "BTC")
}

func TestConsole_NotifyCycle_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	outcomes := []domain.Outcome{
		makeOutcome("Lakers vs Celtics", domain.DecisionDispatched, "", 42.5),
		makeOutcome("Will BTC hit 100k?", domain.DecisionSkipped, "below_grade", 0),
	}

	err := n.NotifyCycle(context.Background(), outcomes)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Lakers vs Celtics")
	assert.Contains(t, out, "Will BTC hit 100k?")
	assert.Contains(t, out, "below_grade")
	assert.Contains(t, out, "ord-1")
	assert.Contains(t, out, "0.4800")
}

func TestConsole_NotifyCycle_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	err := n.NotifyCycle(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no candidates this cycle")
}
