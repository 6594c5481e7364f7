package archive

import (
	"context"
	"sync"

	"github.com/lanebid/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for development
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	bids  []model.Bid
	sales []model.Sale
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordBid(_ context.Context, bid model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids = append(s.bids, bid)
	return nil
}

func (s *MemoryStore) RecordSale(_ context.Context, sale model.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, sale)
	return nil
}

func (s *MemoryStore) BidsByVehicle(_ context.Context, vehicleID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bid
	for _, b := range s.bids {
		if b.VehicleID == vehicleID {
			result = append(result, b)
		}
	}
	return result, nil
}

func (s *MemoryStore) BidsByBidder(_ context.Context, bidderID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bid
	for _, b := range s.bids {
		if b.BidderID == bidderID {
			result = append(result, b)
		}
	}
	return result, nil
}

func (s *MemoryStore) Sales(_ context.Context) ([]model.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]model.Sale, len(s.sales))
	copy(sales, s.sales)
	return sales, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
