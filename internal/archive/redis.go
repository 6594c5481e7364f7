package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lanebid/auction-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// history queries. Writes go to the primary store and invalidate the
// affected keys; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) RecordBid(ctx context.Context, bid model.Bid) error {
	if err := s.primary.RecordBid(ctx, bid); err != nil {
		return err
	}
	s.rdb.Del(ctx, vehicleBidsKey(bid.VehicleID), bidderBidsKey(bid.BidderID))
	return nil
}

func (s *CachedStore) RecordSale(ctx context.Context, sale model.Sale) error {
	if err := s.primary.RecordSale(ctx, sale); err != nil {
		return err
	}
	s.rdb.Del(ctx, salesKey())
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) BidsByVehicle(ctx context.Context, vehicleID string) ([]model.Bid, error) {
	key := vehicleBidsKey(vehicleID)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var bids []model.Bid
		if json.Unmarshal(data, &bids) == nil {
			return bids, nil
		}
	}

	bids, err := s.primary.BidsByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, bids)
	return bids, nil
}

func (s *CachedStore) BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	key := bidderBidsKey(bidderID)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var bids []model.Bid
		if json.Unmarshal(data, &bids) == nil {
			return bids, nil
		}
	}

	bids, err := s.primary.BidsByBidder(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, bids)
	return bids, nil
}

func (s *CachedStore) Sales(ctx context.Context) ([]model.Sale, error) {
	if data, err := s.rdb.Get(ctx, salesKey()).Bytes(); err == nil {
		var sales []model.Sale
		if json.Unmarshal(data, &sales) == nil {
			return sales, nil
		}
	}

	sales, err := s.primary.Sales(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, salesKey(), sales)
	return sales, nil
}

// Ping requires both the cache and the primary to be reachable.
func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return s.primary.Ping(ctx)
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func vehicleBidsKey(id string) string { return fmt.Sprintf("bids:vehicle:%s", id) }
func bidderBidsKey(id string) string  { return fmt.Sprintf("bids:bidder:%s", id) }
func salesKey() string                { return "sales:all" }
