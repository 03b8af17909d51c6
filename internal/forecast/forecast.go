// Package forecast fits a linear trend to a cohort's price history and
// projects it forward. The projection is an ordinary least squares line over
// date ordinals, nothing more; the summary says so to the user.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"aptcast/internal/dataset"
)

// ErrTooFewDeals is returned when a cohort is below the observation floor.
// Refusing to fit is a design decision, not a transient condition: the
// caller shows the raw scatter instead.
var ErrTooFewDeals = errors.New("not enough transactions to fit a trend")

// LargeUnitThreshold is the 만원 magnitude at which the report switches to
// 억원 formatting.
const LargeUnitThreshold = 10000

// Config controls the fit precondition and the prediction schedule
type Config struct {
	// MinObservations is the smallest cohort the fit will run on
	MinObservations int
	// HorizonDays bounds the schedule (exclusive)
	HorizonDays int
	// StepDays is the spacing between prediction points
	StepDays int
}

// DefaultConfig predicts at +15, +30, ... +165 days from the last observed
// date: eleven points spanning just under six months, all strictly in the
// future.
func DefaultConfig() Config {
	return Config{MinObservations: 5, HorizonDays: 180, StepDays: 15}
}

// Point is one predicted (date, price) pair
type Point struct {
	Date  time.Time `json:"date"`
	Price int64     `json:"price"`
}

// Result is a completed forecast for one cohort
type Result struct {
	Points       []Point `json:"points"`
	LastObserved Point   `json:"last_observed"`
	// Delta is the last predicted price minus the last observed price, 만원
	Delta      int64   `json:"delta"`
	Direction  string  `json:"direction"` // "up" or "down"
	Slope      float64 `json:"slope"`     // 만원 per day
	Summary    string  `json:"summary"`
	Disclaimer string  `json:"disclaimer"`
}

const disclaimer = "This projection is a statistical trend line fitted to past transactions. " +
	"Interest rate moves and housing policy are not reflected."

// Run fits the trend for a cohort ordered by contract date ascending.
func Run(cohort []dataset.Deal, cfg Config) (*Result, error) {
	if cfg.StepDays <= 0 || cfg.HorizonDays <= 0 || cfg.MinObservations <= 0 {
		cfg = DefaultConfig()
	}
	if len(cohort) < cfg.MinObservations {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewDeals, len(cohort), cfg.MinObservations)
	}

	xs := make([]float64, len(cohort))
	ys := make([]float64, len(cohort))
	for i, d := range cohort {
		xs[i] = dayOrdinal(d.Date)
		ys[i] = float64(d.Price)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	last := cohort[len(cohort)-1]
	points := make([]Point, 0, cfg.HorizonDays/cfg.StepDays)
	for offset := cfg.StepDays; offset < cfg.HorizonDays; offset += cfg.StepDays {
		date := last.Date.AddDate(0, 0, offset)
		price := int64(math.Round(alpha + beta*dayOrdinal(date)))
		points = append(points, Point{Date: date, Price: price})
	}

	delta := points[len(points)-1].Price - last.Price
	direction := "down"
	if delta > 0 {
		direction = "up"
	}

	return &Result{
		Points:       points,
		LastObserved: Point{Date: last.Date, Price: last.Price},
		Delta:        delta,
		Direction:    direction,
		Slope:        beta,
		Summary:      summarize(direction, delta),
		Disclaimer:   disclaimer,
	}, nil
}

// dayOrdinal maps a date to a day count usable as the regression feature
func dayOrdinal(t time.Time) float64 {
	return float64(t.Unix()) / 86400.0
}

// FormatAmount renders a 만원 magnitude, switching to 억원 at the
// large-unit threshold.
func FormatAmount(manwon int64) string {
	if manwon < 0 {
		manwon = -manwon
	}
	if manwon >= LargeUnitThreshold {
		return fmt.Sprintf("%.1f억원", float64(manwon)/10000)
	}
	return fmt.Sprintf("%d만원", manwon)
}

func summarize(direction string, delta int64) string {
	amount := FormatAmount(delta)
	if direction == "up" {
		return fmt.Sprintf("If the current trend holds, this unit could rise by about %s over the next six months.", amount)
	}
	return fmt.Sprintf("The current trend is cooling; this unit could fall or correct by about %s over the next six months.", amount)
}
