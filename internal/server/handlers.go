package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shipperhq/shopware-shipperhq/internal/events"
	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
	"go.uber.org/zap"
)

// rateRequest is the body of every rate endpoint.
type rateRequest struct {
	Cart    *rates.Cart           `json:"cart"`
	Context *rates.ShopperContext `json:"context"`
	// Methods is only read by the filter endpoint. Empty means the catalog's
	// active methods.
	Methods []rates.ShippingMethod `json:"methods,omitempty"`
}

type ratesResponse struct {
	Rates rates.RateTable `json:"rates"`
}

type methodRateResponse struct {
	Found   bool    `json:"found"`
	Price   float64 `json:"price"`
	Carrier string  `json:"carrierCode,omitempty"`
	Method  string  `json:"methodCode,omitempty"`
}

type methodsResponse struct {
	Purpose string                 `json:"purpose"`
	Methods []rates.ShippingMethod `json:"methods"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeRateRequest(w http.ResponseWriter, r *http.Request) (rateRequest, bool) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}
	if req.Cart == nil {
		req.Cart = &rates.Cart{}
	}
	return req, true
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRateRequest(w, r)
	if !ok {
		return
	}
	table := s.cache.GetRates(r.Context(), req.Cart, req.Context)
	writeJSON(w, http.StatusOK, ratesResponse{Rates: table})
}

func (s *Server) handleGetRateForMethod(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRateRequest(w, r)
	if !ok {
		return
	}
	methodID := chi.URLParam(r, "methodID")

	match, found := s.cache.FindRate(r.Context(), methodID, req.Cart, req.Context)
	resp := methodRateResponse{Found: found}
	if found {
		resp.Price = match.Record.Price
		resp.Carrier = match.Record.CarrierCode
		resp.Method = match.Record.MethodCode
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFilterMethods(w http.ResponseWriter, r *http.Request) {
	purpose, err := rates.ParseCallPurpose(r.URL.Query().Get("purpose"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, ok := decodeRateRequest(w, r)
	if !ok {
		return
	}

	methods := req.Methods
	if len(methods) == 0 && s.methods != nil {
		methods, err = s.methods.ActiveMethods(r.Context())
		if err != nil {
			s.logger.Ctx(r.Context()).Error("Listing shipping methods failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "shipping methods unavailable")
			return
		}
	}

	kept := s.filter.Filter(r.Context(), purpose, methods, req.Cart, req.Context)
	if kept == nil {
		kept = []rates.ShippingMethod{}
	}
	writeJSON(w, http.StatusOK, methodsResponse{Purpose: purpose.String(), Methods: kept})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.cache.ClearCache(r.Context(), sessionID); err != nil {
		s.logger.Ctx(r.Context()).Error("Clearing rate cache failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "clearing cache failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), ev); err != nil {
		if errors.Is(err, events.ErrMalformedEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Ctx(r.Context()).Error("Event handling failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event handling failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
