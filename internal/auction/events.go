package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lanebid/auction-engine/internal/model"
)

// EventType classifies the facts the engine emits.
type EventType string

const (
	EventBidAccepted  EventType = "BID_ACCEPTED"
	EventBidRejected  EventType = "BID_REJECTED"
	EventStateChanged EventType = "STATE_CHANGED"
	EventAuctionEnded EventType = "AUCTION_ENDED"
	EventError        EventType = "ERROR"
)

// Event is a fact emitted by the engine, in the order it happened.
// Timestamps come from the injected clock, not the wall clock.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// BidUpdatePayload accompanies EventBidAccepted.
type BidUpdatePayload struct {
	Vehicle model.VehicleSnapshot `json:"vehicle"`
	Bidder  model.BidderSnapshot  `json:"bidder"`
}

// BidRejectedPayload accompanies EventBidRejected.
type BidRejectedPayload struct {
	VehicleID string          `json:"vehicle_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    RejectReason    `json:"reason"`
	Message   string          `json:"message"`
}

// VehicleSoldPayload accompanies the EventStateChanged emitted when a
// vehicle transitions to SOLD.
type VehicleSoldPayload struct {
	Vehicle model.VehicleSnapshot `json:"vehicle"`
}

// VehicleAdvancePayload accompanies the EventStateChanged emitted when the
// session moves on to the next vehicle.
type VehicleAdvancePayload struct {
	Vehicle model.VehicleSnapshot `json:"vehicle"`
	Index   int                   `json:"index"`
}

// ErrorPayload accompanies EventError for non-fatal operational failures
// such as an archive write going down mid-session.
type ErrorPayload struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}
