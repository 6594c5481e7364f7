// Package simulator generates scripted bid traffic against the engine to
// make a development session feel live. It is a plain engine caller and
// applies its own increment policy, like any external bidder would.
package simulator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lanebid/auction-engine/internal/auction"
	"github.com/lanebid/auction-engine/internal/model"
)

// Config tunes the traffic generator.
type Config struct {
	Interval     time.Duration // time between bid attempts; default 1500ms
	MaxIncrement int64         // random raise over the current bid; default 500
	Badges       []string      // preferred badges to bid as, falling back to any bidder
	Seed         int64         // rng seed; 0 uses the current time
}

// Simulator drives random bids on whatever vehicle is on the block.
type Simulator struct {
	engine       *auction.Engine
	interval     time.Duration
	maxIncrement int64
	badges       []string
	rng          *rand.Rand
}

// New creates a simulator around the engine.
func New(engine *auction.Engine, cfg Config) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 1500 * time.Millisecond
	}
	if cfg.MaxIncrement <= 0 {
		cfg.MaxIncrement = 500
	}
	if len(cfg.Badges) == 0 {
		cfg.Badges = []string{"lane-7", "lane-12", "remote-44", "remote-58"}
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Simulator{
		engine:       engine,
		interval:     cfg.Interval,
		maxIncrement: cfg.MaxIncrement,
		badges:       cfg.Badges,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Run places bids until the context is cancelled or the auction ends.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := s.step(); done {
				return
			}
		}
	}
}

// step attempts one bid. It reports true once the session has ended.
// Rejections are expected (stale snapshots, credit exhaustion) and are
// simply dropped.
func (s *Simulator) step() (done bool) {
	snap := s.engine.Snapshot()
	if snap.State == model.SessionEnded {
		return true
	}
	cur := snap.CurrentVehicle
	if cur == nil || cur.State != model.VehicleActive {
		return false
	}
	if len(snap.Bidders) == 0 {
		return true
	}

	bidder := s.pickBidder(snap.Bidders)
	increment := decimal.NewFromInt(1 + s.rng.Int63n(s.maxIncrement))
	amount := cur.CurrentBid.Add(increment)

	// Caller-side sanity: skip bids the bidder can visibly not afford.
	available := bidder.AvailableCredit
	if cur.CurrentLeaderID == bidder.ID {
		available = available.Add(cur.CurrentBid)
	}
	if amount.GreaterThan(available) {
		return false
	}

	result := s.engine.ApplyBid(model.Bid{
		VehicleID: cur.ID,
		BidderID:  bidder.ID,
		Amount:    amount,
	})
	if !result.Accepted {
		slog.Debug("simulated bid rejected", "bidder", bidder.ID, "reason", string(result.Reason))
	}
	return false
}

// pickBidder prefers a random configured badge and falls back to a random
// bidder when no badge matches.
func (s *Simulator) pickBidder(bidders []model.BidderSnapshot) model.BidderSnapshot {
	badge := s.badges[s.rng.Intn(len(s.badges))]
	for _, b := range bidders {
		if b.Badge == badge {
			return b
		}
	}
	return bidders[s.rng.Intn(len(bidders))]
}
