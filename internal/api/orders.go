package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/sim"
)

// submitOrderRequest is the order submission payload.
type submitOrderRequest struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Kind         string  `json:"kind"`
	Quantity     float64 `json:"quantity"`
	LimitPrice   float64 `json:"limit_price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	pipeline, ok := s.pipelines[req.Symbol]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_symbol", "no simulation running for symbol "+req.Symbol)
		return
	}

	order, err := pipeline.Submit(r.Context(), sim.Order{
		Symbol:       req.Symbol,
		Side:         book.Side(req.Side),
		Kind:         sim.Kind(req.Kind),
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_order", err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")

	for _, pipeline := range s.pipelines {
		order, err := pipeline.GetOrder(r.Context(), id)
		if err == nil {
			WriteJSON(w, http.StatusOK, order)
			return
		}
		if !errors.Is(err, sim.ErrOrderNotFound) {
			WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
	}

	WriteError(w, http.StatusNotFound, "order_not_found", "no order with id "+id)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "order_id")

	for _, pipeline := range s.pipelines {
		order, err := pipeline.Cancel(r.Context(), id)
		switch {
		case err == nil:
			WriteJSON(w, http.StatusOK, order)
			return
		case errors.Is(err, sim.ErrOrderTerminal):
			WriteError(w, http.StatusConflict, "order_terminal",
				"order "+id+" is already "+string(order.Status))
			return
		case errors.Is(err, sim.ErrOrderNotFound):
			continue
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
	}

	WriteError(w, http.StatusNotFound, "order_not_found", "no order with id "+id)
}
