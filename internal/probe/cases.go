package probe

import (
	"net/url"
	"time"

	"github.com/okian/usagedash/internal/domain/model"
)

const allWindow = "all"

var windowSpans = map[string]time.Duration{ //nolint:gochecknoglobals // lookup table
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Case is one request the probe issues.
type Case struct {
	Name   string
	Source string
	Window model.Window
	Org    string
}

// Query renders the request parameters for the case.
func (c Case) Query() url.Values {
	v := url.Values{}
	v.Set("source", c.Source)
	if !c.Window.AllTime {
		v.Set("startDate", c.Window.From.Format(time.RFC3339))
		v.Set("endDate", c.Window.To.Format(time.RFC3339))
	}
	if c.Org != "" {
		v.Set("selectedOrg", c.Org)
	}
	return v
}

// BuildCases crosses every source with every window ending at now. Bounded
// windows end on a whole minute so bucket counts are stable.
func BuildCases(cfg *Config, now time.Time) []Case {
	end := now.UTC().Truncate(time.Minute)
	var out []Case
	for _, src := range cfg.Sources {
		for _, name := range cfg.Windows {
			w := model.AllTimeWindow()
			if span, ok := windowSpans[name]; ok {
				w = model.Window{From: end.Add(-span), To: end}
			}
			out = append(out, Case{
				Name:   src + "/" + name,
				Source: src,
				Window: w,
				Org:    cfg.Org,
			})
		}
	}
	return out
}
