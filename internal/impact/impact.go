package impact

import (
	"errors"

	"github.com/goquant/tradesim/internal/book"
)

// ErrNoDepth is returned when the opposing side of the book is empty and
// no execution price can be derived.
var ErrNoDepth = errors.New("no visible depth on opposing side")

// Params is the impact model parameter set. The naming follows the
// Almgren-Chriss convention: permanent/temporary impact coefficients, the
// temporary-impact decay rate, risk aversion and volatility.
type Params struct {
	PermanentImpact float64
	TemporaryImpact float64
	TemporaryDecay  float64
	RiskAversion    float64
	Volatility      float64

	// BaseSlippageBps scales the size/depth ratio into basis points.
	BaseSlippageBps float64

	// MaxImpactBps caps the reported impact. Estimates that hit the cap
	// are flagged so callers can tell an extrapolated price from a
	// normally priced one.
	MaxImpactBps float64

	// DepthLevels bounds how many levels per side feed the depth estimate.
	DepthLevels int
}

// DefaultParams mirrors the simulator's stock parameter set for BTC-class
// volatility.
func DefaultParams() Params {
	return Params{
		PermanentImpact: 0.15,
		TemporaryImpact: 0.2,
		TemporaryDecay:  0.6,
		RiskAversion:    1.5,
		Volatility:      0.03,
		BaseSlippageBps: 1.0,
		MaxImpactBps:    500.0,
		DepthLevels:     10,
	}
}

// Estimate is the result of pricing a hypothetical order against a book
// snapshot.
type Estimate struct {
	FillPrice float64
	ImpactBps float64

	// Capped is set when the order exceeded visible depth or the impact
	// hit MaxImpactBps, meaning the price is an extrapolation.
	Capped bool
}

// Model computes execution price slippage from order size and book depth.
// It holds only immutable parameters: every method is a pure function of
// its inputs, so identical inputs always reproduce identical estimates.
type Model struct {
	params Params
}

// NewModel creates a model with the given parameters.
func NewModel(params Params) *Model {
	if params.DepthLevels <= 0 {
		params.DepthLevels = 10
	}
	return &Model{params: params}
}

// Params returns the model's parameter set.
func (m *Model) Params() Params {
	return m.params
}

// EstimateFillPrice prices an order of the given side and quantity against
// the snapshot. The base price is the volume-weighted average over the
// opposing levels; on top of that, adverse slippage grows nonlinearly with
// the order-size-to-depth ratio. Orders beyond the visible depth still get
// a finite price: the unfilled remainder is priced at the worst visible
// level and the estimate is flagged as capped. The only failure is an
// empty opposing side.
func (m *Model) EstimateFillPrice(side book.Side, quantity float64, snap book.Snapshot) (Estimate, error) {
	levels := snap.Levels(side)
	if len(levels) == 0 {
		return Estimate{}, ErrNoDepth
	}
	if quantity <= 0 {
		return Estimate{}, errors.New("quantity must be positive")
	}

	maxLevels := m.params.DepthLevels
	if maxLevels > len(levels) {
		maxLevels = len(levels)
	}

	var visibleQty, notional float64
	for _, lvl := range levels[:maxLevels] {
		take := lvl.Size
		if visibleQty+take > quantity {
			take = quantity - visibleQty
		}
		notional += lvl.Price * take
		visibleQty += take
		if visibleQty >= quantity {
			break
		}
	}

	capped := false
	if visibleQty < quantity {
		// Remainder beyond visible depth executes at the worst level.
		worst := levels[maxLevels-1].Price
		notional += worst * (quantity - visibleQty)
		capped = true
	}
	vwap := notional / quantity

	totalDepth := 0.0
	for _, lvl := range levels[:maxLevels] {
		totalDepth += lvl.Size
	}
	ratio := quantity / totalDepth

	// Linear in the size/depth ratio for small orders, quadratic as the
	// order consumes a meaningful share of the book, scaled up in more
	// volatile markets.
	impactBps := m.params.BaseSlippageBps * ratio * 10000 / 100
	impactBps *= 1 + m.params.TemporaryImpact*ratio
	impactBps *= 1 + 2*m.params.Volatility
	if impactBps >= m.params.MaxImpactBps {
		impactBps = m.params.MaxImpactBps
		capped = true
	}

	price := vwap
	if side == book.SideBuy {
		price *= 1 + impactBps/10000
	} else {
		price *= 1 - impactBps/10000
	}

	return Estimate{FillPrice: price, ImpactBps: impactBps, Capped: capped}, nil
}

// EstimateSlippageBps returns the expected slippage in basis points for an
// order of the given side and quantity, without computing a full price.
func (m *Model) EstimateSlippageBps(side book.Side, quantity float64, snap book.Snapshot) float64 {
	depth := snap.DepthQty(side)
	if depth <= 0 {
		return m.params.MaxImpactBps
	}
	bps := quantity / depth * 10000 * m.params.BaseSlippageBps / 100
	bps *= 1 + 2*m.params.Volatility
	if bps > m.params.MaxImpactBps {
		return m.params.MaxImpactBps
	}
	return bps
}

// MakerProportion predicts what share of an order would likely rest as a
// maker rather than cross the spread, based on the current spread and depth
// imbalance. The result is clamped to [0.2, 0.8].
func (m *Model) MakerProportion(snap book.Snapshot) float64 {
	mid := snap.Mid()
	if mid <= 0 {
		return 0.5
	}
	spread := snap.Spread() / mid

	askDepth := snap.DepthNotional(book.SideBuy)
	bidDepth := snap.DepthNotional(book.SideSell)
	if askDepth <= 0 || bidDepth <= 0 {
		return 0.5
	}
	depthRatio := askDepth / bidDepth
	if depthRatio > 1 {
		depthRatio = 1 / depthRatio
	}

	prop := 0.5 + spread*10*depthRatio
	if prop < 0.2 {
		return 0.2
	}
	if prop > 0.8 {
		return 0.8
	}
	return prop
}
