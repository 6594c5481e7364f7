// Package archive persists the immutable bid and sale records produced by
// the auction engine. Implementations include PostgreSQL (durable sink),
// Redis (read-through cache for history queries), and in-memory (for
// development and tests).
//
// The archive is an audit trail, not the source of truth: the engine's
// in-memory session state drives the auction and archive failures never
// fail a bid.
package archive

import (
	"context"

	"github.com/lanebid/auction-engine/internal/model"
)

// Store is the persistence interface for auction records. All writes are
// append-only; records are never modified or deleted.
type Store interface {
	// RecordBid appends an accepted bid.
	RecordBid(ctx context.Context, bid model.Bid) error

	// RecordSale appends a completed sale.
	RecordSale(ctx context.Context, sale model.Sale) error

	// BidsByVehicle returns the bid history for one vehicle in
	// acceptance order.
	BidsByVehicle(ctx context.Context, vehicleID string) ([]model.Bid, error)

	// BidsByBidder returns every bid a bidder has placed.
	BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)

	// Sales returns all completed sales in order.
	Sales(ctx context.Context) ([]model.Sale, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
