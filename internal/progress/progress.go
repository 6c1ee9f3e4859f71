// Package progress derives the percent-complete view of a project.
package progress

import (
	"encoding/json"

	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

// Unbounded is the rendered percent of projects without a meaningful target.
const Unbounded = "unbounded"

var hundred = decimal.NewFromInt(100)

// Progress is derived, never stored.
type Progress struct {
	// Unbounded is set for open projects and zero targets.
	Unbounded bool
	// Percent is 0..100 and only meaningful when !Unbounded.
	Percent int
	// BarFraction is the filled share of a progress bar, 0..1.
	BarFraction float64
}

// Compute returns the progress of current towards target. Open projects and
// zero targets are unbounded and render a full bar. Otherwise the percent is
// rounded half away from zero and clamped to 0..100, so overshoot shows 100.
func Compute(current, target decimal.Decimal, typ models.ProjectType) Progress {
	if typ == models.ProjectTypeOpen || target.IsZero() {
		return Progress{Unbounded: true, BarFraction: 1}
	}

	// Clamp before IntPart: huge overshoots do not fit in an int64.
	ratio := current.Mul(hundred).Div(target).Round(0)
	switch {
	case ratio.IsNegative():
		ratio = decimal.Zero
	case ratio.GreaterThan(hundred):
		ratio = hundred
	}

	pct := int(ratio.IntPart())
	return Progress{Percent: pct, BarFraction: float64(pct) / 100}
}

// Label is the human readable percent, e.g. "42%" or "unbounded".
func (p Progress) Label() string {
	if p.Unbounded {
		return Unbounded
	}
	return decimal.NewFromInt(int64(p.Percent)).String() + "%"
}

func (p Progress) MarshalJSON() ([]byte, error) {
	var percent any = p.Percent
	if p.Unbounded {
		percent = Unbounded
	}
	return json.Marshal(struct {
		Percent     any     `json:"percent"`
		BarFraction float64 `json:"barFraction"`
	}{percent, p.BarFraction})
}
