package auction

import (
	"fmt"

	"github.com/lanebid/auction-engine/internal/model"
)

// validateLocked runs the ordered acceptance checks for a candidate bid.
// It is a pure read: no state is mutated on any path. Must be called with
// the engine mutex held so the checks see the true post-previous-bid state.
func (e *Engine) validateLocked(bid model.Bid) (reason RejectReason, msg string, ok bool) {
	if e.closed || e.session.state == model.SessionEnded {
		return RejectVehicleNotActive, "the auction has ended", false
	}

	v, known := e.session.byID[bid.VehicleID]
	if !known {
		return RejectUnknownVehicle, fmt.Sprintf("no vehicle %q in this auction", bid.VehicleID), false
	}
	if v.State != model.VehicleActive {
		return RejectVehicleNotActive, fmt.Sprintf("vehicle %s is not open for bidding", v.ID), false
	}

	if _, known := e.bidders[bid.BidderID]; !known {
		return RejectUnknownBidder, fmt.Sprintf("no bidder %q in this auction", bid.BidderID), false
	}

	// Strictly higher only. Increment policy belongs to callers.
	if !bid.Amount.GreaterThan(v.CurrentBid) {
		return RejectBidTooLow,
			fmt.Sprintf("bid %s must exceed the current bid %s", bid.Amount, v.CurrentBid), false
	}

	// Available credit is computed as if the bidder's own leading bid on
	// this vehicle were released first, so raising your own bid only needs
	// the difference.
	limit, used, err := e.ledger.Balance(bid.BidderID)
	if err != nil {
		return RejectUnknownBidder, err.Error(), false
	}
	available := limit.Sub(used)
	if v.CurrentLeaderID == bid.BidderID {
		available = available.Add(v.CurrentBid)
	}
	if bid.Amount.GreaterThan(available) {
		return RejectInsufficientCredit,
			fmt.Sprintf("bid %s exceeds available credit %s", bid.Amount, available), false
	}

	return "", "", true
}
