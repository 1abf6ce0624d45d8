// Package trend compares the score of a run with the previous one.
package trend

import "math"

type Direction string

const (
	Up       Direction = "up"
	Down     Direction = "down"
	Flat     Direction = "flat"
	FirstRun Direction = "first_run"
)

// epsilon absorbs float noise from weighted averages.
const epsilon = 0.00001

type Trend struct {
	DeltaScore   float64   `json:"deltaScore"`
	DeltaPercent float64   `json:"deltaPercent"`
	Direction    Direction `json:"direction"`
	From         float64   `json:"from"`
	To           float64   `json:"to"`
	// Domains holds per-domain deltas for domains present in both runs.
	Domains map[string]float64 `json:"domains,omitempty"`
}

// First is the trend of a cluster with no earlier run.
func First(curr float64) Trend {
	return Trend{Direction: FirstRun, To: round(curr, 2)}
}

func Compute(prev, curr float64) Trend {
	d := curr - prev

	dir := Flat
	if d > epsilon {
		dir = Up
	} else if d < -epsilon {
		dir = Down
	}

	dp := 0.0
	if math.Abs(prev) > epsilon {
		dp = (d / prev) * 100.0
	}

	return Trend{
		DeltaScore:   round(d, 2),
		DeltaPercent: round(dp, 2),
		Direction:    dir,
		From:         round(prev, 2),
		To:           round(curr, 2),
	}
}

// WithDomains adds per-domain deltas between two score breakdowns.
func (t Trend) WithDomains(prev, curr map[string]float64) Trend {
	for domain, c := range curr {
		p, ok := prev[domain]
		if !ok {
			continue
		}
		if t.Domains == nil {
			t.Domains = map[string]float64{}
		}
		t.Domains[domain] = round(c-p, 2)
	}
	return t
}

// Label is the upper-case form used in console output.
func (t Trend) Label() string {
	switch t.Direction {
	case Up:
		return "IMPROVING"
	case Down:
		return "DECLINING"
	case FirstRun:
		return "FIRST_RUN"
	default:
		return "SAME"
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
