// Package httpapi provides the HTTP surface of the auction service:
// snapshot hydration, bid submission, bid history, health, and the
// WebSocket feed. It only calls the engine's public contract.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lanebid/auction-engine/internal/archive"
	"github.com/lanebid/auction-engine/internal/auction"
	"github.com/lanebid/auction-engine/internal/metrics"
	"github.com/lanebid/auction-engine/internal/model"
)

// Server bundles the engine, the archive, and the WebSocket hub behind
// HTTP handlers.
type Server struct {
	engine *auction.Engine
	store  archive.Store
	hub    *WSHub
}

// NewServer creates the HTTP surface. hub may be nil when WebSocket
// broadcasting is not needed (tests).
func NewServer(engine *auction.Engine, store archive.Store, hub *WSHub) *Server {
	return &Server{engine: engine, store: store, hub: hub}
}

// Register mounts all routes on the given router.
func (s *Server) Register(r chi.Router) {
	r.Get("/auction", s.GetAuction)
	r.Post("/bid", s.PlaceBid)
	r.Post("/auction/close", s.CloseVehicle)
	r.Get("/vehicles/{vehicleID}/bids", s.GetVehicleBids)
	r.Get("/health", s.Health)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
}

// BidRequest is the JSON body for POST /bid. VehicleID is optional; when
// empty the bid targets the vehicle currently on the block.
type BidRequest struct {
	VehicleID string          `json:"vehicle_id,omitempty"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// GetAuction handles GET /auction — the full session snapshot.
func (s *Server) GetAuction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// PlaceBid handles POST /bid. Both accepted and rejected bids return 200
// with a structured Result; only malformed requests are 400.
func (s *Server) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BidderID == "" {
		writeError(w, "bidder_id is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := s.engine.ApplyBid(model.Bid{
		VehicleID: req.VehicleID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
	})
	metrics.BidLatency.Observe(time.Since(start).Seconds())

	if result.Accepted {
		metrics.BidsTotal.WithLabelValues("accepted").Inc()
		if result.Vehicle.State == model.VehicleSold {
			metrics.VehiclesSold.Inc()
		}
	} else {
		metrics.BidsTotal.WithLabelValues(string(result.Reason)).Inc()
	}

	writeJSON(w, http.StatusOK, result)
}

// CloseVehicle handles POST /auction/close — the auctioneer's hammer.
func (s *Server) CloseVehicle(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.CloseVehicle()
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	metrics.VehiclesSold.Inc()
	writeJSON(w, http.StatusOK, result)
}

// GetVehicleBids handles GET /vehicles/{vehicleID}/bids from the archive.
func (s *Server) GetVehicleBids(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")

	bids, err := s.store.BidsByVehicle(r.Context(), vehicleID)
	if err != nil {
		slog.Error("bid history query failed", "vehicle", vehicleID, "err", err)
		writeError(w, "failed to load bid history", http.StatusInternalServerError)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

// Health handles GET /health and reports archive reachability.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{"archive": true}
	status := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		slog.Error("archive health check failed", "err", err)
		checks["archive"] = false
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]any{
		"ok":     status == http.StatusOK,
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
