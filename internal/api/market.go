package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/goquant/tradesim/internal/book"
)

// bookResponse is the book snapshot payload.
type bookResponse struct {
	Symbol           string       `json:"symbol"`
	BestBid          float64      `json:"best_bid"`
	BestAsk          float64      `json:"best_ask"`
	Mid              float64      `json:"mid"`
	Spread           float64      `json:"spread"`
	SpreadBps        float64      `json:"spread_bps"`
	LastPrice        float64      `json:"last_price"`
	Bids             []book.Level `json:"bids"`
	Asks             []book.Level `json:"asks"`
	LastUpdateMillis int64        `json:"last_update_ms"`
	StaleDropped     int64        `json:"stale_dropped"`
	CrossedRejected  int64        `json:"crossed_rejected"`
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	pipeline, ok := s.pipelines[symbol]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_symbol", "no simulation running for symbol "+symbol)
		return
	}

	b := pipeline.Book()
	snap := b.Snapshot(bookDepth)
	WriteJSON(w, http.StatusOK, bookResponse{
		Symbol:           snap.Symbol,
		BestBid:          snap.BestBid,
		BestAsk:          snap.BestAsk,
		Mid:              snap.Mid(),
		Spread:           snap.Spread(),
		SpreadBps:        snap.SpreadBps(),
		LastPrice:        snap.LastPrice,
		Bids:             snap.Bids,
		Asks:             snap.Asks,
		LastUpdateMillis: snap.LastUpdateMillis,
		StaleDropped:     b.StaleCount(),
		CrossedRejected:  b.CrossedCount(),
	})
}

// impactEstimateResponse is the impact preview payload.
type impactEstimateResponse struct {
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	Quantity        float64 `json:"quantity"`
	FillPrice       float64 `json:"fill_price"`
	ImpactBps       float64 `json:"impact_bps"`
	Capped          bool    `json:"capped"`
	MakerProportion float64 `json:"maker_proportion"`
}

func (s *Server) handleImpactEstimate(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	pipeline, ok := s.pipelines[symbol]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_symbol", "no simulation running for symbol "+symbol)
		return
	}

	side := book.Side(r.URL.Query().Get("side"))
	if !side.Valid() {
		WriteError(w, http.StatusBadRequest, "invalid_request", "side must be BUY or SELL")
		return
	}
	qty, err := strconv.ParseFloat(r.URL.Query().Get("qty"), 64)
	if err != nil || qty <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "qty must be a positive number")
		return
	}

	snap := pipeline.Book().Snapshot(bookDepth)
	est, err := s.model.EstimateFillPrice(side, qty, snap)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "no_depth", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, impactEstimateResponse{
		Symbol:          symbol,
		Side:            string(side),
		Quantity:        qty,
		FillPrice:       est.FillPrice,
		ImpactBps:       est.ImpactBps,
		Capped:          est.Capped,
		MakerProportion: s.model.MakerProportion(snap),
	})
}

func (s *Server) handleImpactSchedule(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	pipeline, ok := s.pipelines[symbol]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_symbol", "no simulation running for symbol "+symbol)
		return
	}

	qty, err := strconv.ParseFloat(r.URL.Query().Get("qty"), 64)
	if err != nil || qty <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "qty must be a positive number")
		return
	}
	horizon := 1.0
	if v := r.URL.Query().Get("horizon"); v != "" {
		if horizon, err = strconv.ParseFloat(v, 64); err != nil || horizon <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid_request", "horizon must be a positive number")
			return
		}
	}
	periods := 10
	if v := r.URL.Query().Get("periods"); v != "" {
		if periods, err = strconv.Atoi(v); err != nil || periods <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid_request", "periods must be a positive integer")
			return
		}
	}

	mid := pipeline.Book().Snapshot(1).Mid()
	schedule, err := s.model.OptimalSchedule(qty, horizon, periods, mid)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, schedule)
}
