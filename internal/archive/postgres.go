package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lanebid/auction-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision and scanned through TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed archive.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) RecordBid(ctx context.Context, b model.Bid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bids (id, vehicle_id, bidder_id, amount, placed_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		b.ID, b.VehicleID, b.BidderID, b.Amount.String(), b.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record bid %s: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordSale(ctx context.Context, sale model.Sale) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sales (id, vehicle_id, winner_id, hammer_price, sold_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		sale.ID, sale.VehicleID, sale.WinnerID, sale.HammerPrice.String(), sale.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record sale %s: %w", sale.ID, err)
	}
	return nil
}

func (s *PostgresStore) BidsByVehicle(ctx context.Context, vehicleID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vehicle_id, bidder_id, amount::TEXT, placed_at
		 FROM bids WHERE vehicle_id = $1 ORDER BY placed_at`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBids(rows)
}

func (s *PostgresStore) BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vehicle_id, bidder_id, amount::TEXT, placed_at
		 FROM bids WHERE bidder_id = $1 ORDER BY placed_at`, bidderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBids(rows)
}

func (s *PostgresStore) Sales(ctx context.Context) ([]model.Sale, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vehicle_id, winner_id, hammer_price::TEXT, sold_at
		 FROM sales ORDER BY sold_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		var sale model.Sale
		var priceS string
		if err := rows.Scan(&sale.ID, &sale.VehicleID, &sale.WinnerID, &priceS, &sale.Timestamp); err != nil {
			return nil, err
		}
		sale.HammerPrice, _ = decimal.NewFromString(priceS)
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanBids reads pgx rows into Bid slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanBids(rows pgxRows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		var amountS string
		if err := rows.Scan(&b.ID, &b.VehicleID, &b.BidderID, &amountS, &b.Timestamp); err != nil {
			return nil, err
		}
		b.Amount, _ = decimal.NewFromString(amountS)
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
