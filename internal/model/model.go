// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VehicleState is the lifecycle state of a single vehicle.
// A vehicle moves PENDING → ACTIVE exactly once and ACTIVE → SOLD exactly
// once; no transition skips a state and none reverses.
type VehicleState string

const (
	VehiclePending VehicleState = "PENDING"
	VehicleActive  VehicleState = "ACTIVE"
	VehicleSold    VehicleState = "SOLD"
)

// SessionState is the overall state of an auction session.
type SessionState string

const (
	SessionLive  SessionState = "LIVE"
	SessionEnded SessionState = "ENDED"
)

// Bidder is a registered auction participant with a credit line.
type Bidder struct {
	ID          string          `json:"id"`
	Badge       string          `json:"badge"` // lane or remote badge shown on the block
	Name        string          `json:"name"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	CreditUsed  decimal.Decimal `json:"credit_used"`
}

// AvailableCredit returns creditLimit - creditUsed.
func (b Bidder) AvailableCredit() decimal.Decimal {
	return b.CreditLimit.Sub(b.CreditUsed)
}

// Vehicle is one lot in the run list.
// TargetPrice is the price at which the vehicle sells automatically; a zero
// target means no-reserve, the lot only sells on a hammer close.
type Vehicle struct {
	ID          string          `json:"id"`
	Year        int             `json:"year"`
	Make        string          `json:"make"`
	Model       string          `json:"model"`
	VIN         string          `json:"vin"`
	StartingBid decimal.Decimal `json:"starting_bid"`
	TargetPrice decimal.Decimal `json:"target_price"`

	CurrentBid      decimal.Decimal `json:"current_bid"`
	CurrentLeaderID string          `json:"current_leader_id,omitempty"`
	WinnerID        string          `json:"winner_id,omitempty"`
	SoldAt          *time.Time      `json:"sold_at,omitempty"`
	State           VehicleState    `json:"state"`
}

// HasTarget reports whether the vehicle has a reserve target price.
func (v Vehicle) HasTarget() bool {
	return v.TargetPrice.IsPositive()
}

// Bid is an immutable record of a submitted bid. Accepted bids are retained
// per vehicle as an append-only sequence and never modified.
type Bid struct {
	ID        string          `json:"id"`
	VehicleID string          `json:"vehicle_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sale is an immutable record of a completed vehicle sale.
type Sale struct {
	ID          string          `json:"id"`
	VehicleID   string          `json:"vehicle_id"`
	WinnerID    string          `json:"winner_id"`
	HammerPrice decimal.Decimal `json:"hammer_price"`
	Timestamp   time.Time       `json:"timestamp"`
}

// BidderSnapshot is the read-only view of a bidder handed to clients.
type BidderSnapshot struct {
	ID              string          `json:"id"`
	Badge           string          `json:"badge"`
	Name            string          `json:"name"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	CreditUsed      decimal.Decimal `json:"credit_used"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
}

// VehicleSnapshot is the read-only view of a vehicle handed to clients,
// including its append-only bid history.
type VehicleSnapshot struct {
	Vehicle
	Bids []Bid `json:"bids"`
}

// SessionSnapshot is a deep, read-only view of the whole session used for
// client hydration. It shares no mutable state with the engine.
type SessionSnapshot struct {
	State               SessionState      `json:"state"`
	Vehicles            []VehicleSnapshot `json:"vehicles"`
	Bidders             []BidderSnapshot  `json:"bidders"`
	CurrentVehicleIndex int               `json:"current_vehicle_index"`
	CurrentVehicle      *VehicleSnapshot  `json:"current_vehicle,omitempty"`
}
