package feed

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// parseFlexTime normaliza los timestamps del feed, que llegan en
// cualquiera de estos formatos: epoch en segundos, epoch en
// milisegundos, o string ISO-8601. Devuelve zero si no se puede parsear.
func parseFlexTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}

	// Número: epoch s o ms según magnitud.
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return epochToTime(num)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}

	// String numérico.
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return epochToTime(n)
	}

	// ISO-8601, con o sin zona.
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", text); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// epochToTime interpreta el valor como segundos, o milisegundos si la
// magnitud delata ms (> 1e12).
func epochToTime(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v > 1_000_000_000_000 {
		v = v / 1000.0
	}
	return time.Unix(int64(v), 0).UTC()
}

var rayIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Cloudflare Ray ID:\s*<strong[^>]*>([^<]+)</strong>`),
	regexp.MustCompile(`Cloudflare Ray ID:\s*([A-Za-z0-9]+)`),
}

// extractRayID saca el Cloudflare Ray ID del body de un bloqueo, si
// está. Solo para diagnóstico en logs.
func extractRayID(body string) string {
	for _, re := range rayIDPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
