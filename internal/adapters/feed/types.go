package feed

import (
	"encoding/json"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// candidatesResponse es el body de GET /api/bot/candidates.
type candidatesResponse struct {
	Candidates []candidate `json:"candidates"`
	Debug      *debugInfo  `json:"debug"`
}

type debugInfo struct {
	TotalEntries    int `json:"totalEntries"`
	UpcomingEntries int `json:"upcomingEntries"`
	DedupDropped    int `json:"dedupDropped"`
}

type candidate struct {
	Entry entry     `json:"entry"`
	Grade gradeInfo `json:"grade"`
}

type entry struct {
	ConditionID    string          `json:"conditionId"`
	MarketTitle    string          `json:"marketTitle"`
	EventTitle     string          `json:"eventTitle"`
	EventSlug      string          `json:"eventSlug"`
	SharpSide      string          `json:"sharpSide"`
	SharpSidePrice float64         `json:"sharpSidePrice"`
	SideA          sideLabel       `json:"sideA"`
	SideB          sideLabel       `json:"sideB"`
	EventTime      json.RawMessage `json:"eventTime"`  // epoch s/ms o ISO-8601; normalizado en mapping
	DetectedAt     json.RawMessage `json:"detectedAt"` // ídem
}

type sideLabel struct {
	Label string `json:"label"`
}

type gradeInfo struct {
	Grade       string  `json:"grade"`
	SignalScore float64 `json:"signalScore"`
}

// toDomain convierte el registro wire a domain.Opportunity.
func (c candidate) toDomain() domain.Opportunity {
	label := c.Entry.SideA.Label
	if c.Entry.SharpSide == "B" {
		label = c.Entry.SideB.Label
	}

	title := c.Entry.EventTitle
	if title == "" {
		title = c.Entry.EventSlug
	}

	return domain.Opportunity{
		ConditionID:  c.Entry.ConditionID,
		MarketTitle:  c.Entry.MarketTitle,
		EventTitle:   title,
		Side:         c.Entry.SharpSide,
		SideLabel:    label,
		Price:        c.Entry.SharpSidePrice,
		Grade:        domain.Grade(c.Grade.Grade),
		SignalScore:  c.Grade.SignalScore,
		EventTime:    parseFlexTime(c.Entry.EventTime),
		DiscoveredAt: parseFlexTime(c.Entry.DetectedAt),
	}
}
