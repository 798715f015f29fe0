package api

import (
	"net/http"
	"strconv"
)

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.ledger.Snapshot())
}

func (s *Server) handleGetEquityCurve(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid_request", "n must be a positive integer")
			return
		}
		n = parsed
	}
	WriteJSON(w, http.StatusOK, s.ledger.EquityCurve(n))
}

func (s *Server) handleGetLatency(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.monitor.Stats())
}
