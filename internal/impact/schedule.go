package impact

import (
	"errors"
	"math"
)

// Schedule is an optimal execution plan for working a parent order over a
// fixed horizon: the remaining position at each period boundary, the trading
// rate per period, and the expected cost decomposition.
type Schedule struct {
	Holdings             []float64 `json:"holdings"`
	Rates                []float64 `json:"rates"`
	MarketImpactCost     float64   `json:"market_impact_cost"`
	PermanentImpactCost  float64   `json:"permanent_impact_cost"`
	VolatilityCost       float64   `json:"volatility_cost"`
	TotalCost            float64   `json:"total_cost"`
	ExpectedShortfallBps float64   `json:"expected_shortfall_bps"`
}

// OptimalSchedule computes the Almgren-Chriss execution schedule for the
// given quantity over timeHorizon (in days) split into numPeriods slices.
// referencePrice anchors the expected-shortfall figure; it is typically the
// current mid.
func (m *Model) OptimalSchedule(quantity, timeHorizon float64, numPeriods int, referencePrice float64) (Schedule, error) {
	if quantity <= 0 {
		return Schedule{}, errors.New("quantity must be positive")
	}
	if timeHorizon <= 0 || numPeriods <= 0 {
		return Schedule{}, errors.New("time horizon and period count must be positive")
	}

	p := m.params
	tau := timeHorizon / float64(numPeriods)
	kappa := math.Sqrt(p.RiskAversion * p.Volatility * p.Volatility / p.TemporaryImpact)

	holdings := make([]float64, numPeriods+1)
	for i := 0; i <= numPeriods; i++ {
		t := timeHorizon * float64(i) / float64(numPeriods)
		holdings[i] = quantity * math.Sinh(kappa*(timeHorizon-t)) / math.Sinh(kappa*timeHorizon)
	}

	rates := make([]float64, numPeriods)
	var rateSq, holdSq float64
	for i := 0; i < numPeriods; i++ {
		rates[i] = (holdings[i] - holdings[i+1]) / tau
		rateSq += rates[i] * rates[i]
		holdSq += holdings[i+1] * holdings[i+1]
	}

	etaTilde := p.PermanentImpact - p.TemporaryImpact/2

	s := Schedule{
		Holdings:            holdings,
		Rates:               rates,
		MarketImpactCost:    p.TemporaryImpact * rateSq * tau,
		PermanentImpactCost: etaTilde * quantity * quantity,
		VolatilityCost:      p.RiskAversion * p.Volatility * p.Volatility * holdSq * tau,
	}
	s.TotalCost = s.MarketImpactCost + s.PermanentImpactCost + s.VolatilityCost
	if referencePrice > 0 {
		s.ExpectedShortfallBps = s.TotalCost / (quantity * referencePrice) * 10000
	}

	return s, nil
}
