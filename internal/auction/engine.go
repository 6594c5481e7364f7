// Package auction implements the live auction bidding engine: bid
// validation, credit reservation, vehicle lifecycle transitions, and
// timer-driven advancement through the run list.
//
// The engine serializes every mutating operation through a single mutex
// (one session, modest bid rate), so concurrent bids for the same vehicle
// are totally ordered and each is validated against the true
// post-previous-bid state.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanebid/auction-engine/internal/clock"
	"github.com/lanebid/auction-engine/internal/ledger"
	"github.com/lanebid/auction-engine/internal/model"
)

// RejectReason classifies why a bid was not accepted. Rejections are
// routine outcomes returned as data, never as errors.
type RejectReason string

const (
	RejectUnknownVehicle     RejectReason = "UNKNOWN_VEHICLE"
	RejectUnknownBidder      RejectReason = "UNKNOWN_BIDDER"
	RejectVehicleNotActive   RejectReason = "VEHICLE_NOT_ACTIVE"
	RejectBidTooLow          RejectReason = "BID_TOO_LOW"
	RejectInsufficientCredit RejectReason = "INSUFFICIENT_CREDIT"
)

// Construction and operator errors. Invalid bids are never errors; these
// cover misconfiguration and hammer closes with nothing to sell.
var (
	ErrNoVehicles       = errors.New("auction: session needs at least one vehicle")
	ErrNoBidders        = errors.New("auction: session needs at least one bidder")
	ErrDuplicateVehicle = errors.New("auction: duplicate vehicle id in run list")
	ErrNoActiveVehicle  = errors.New("auction: no vehicle is on the block")
	ErrNoLeadingBid     = errors.New("auction: vehicle has no leading bid to hammer")
)

// DefaultAdvanceDelay is how long a sold vehicle stays on the block before
// the session moves to the next one.
const DefaultAdvanceDelay = 10 * time.Second

// Result is the outcome of ApplyBid: either an acceptance with fresh
// vehicle/bidder snapshots, or a structured rejection. Events carries the
// facts emitted by this call, in order.
type Result struct {
	Accepted bool                   `json:"accepted"`
	Reason   RejectReason           `json:"reason,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Vehicle  *model.VehicleSnapshot `json:"vehicle,omitempty"`
	Bidder   *model.BidderSnapshot  `json:"bidder,omitempty"`
	Events   []Event                `json:"-"`
}

// Recorder is the sink for immutable bid and sale records. Archive
// failures are reported as events, never as bid failures: the in-memory
// session is the source of truth.
type Recorder interface {
	RecordBid(ctx context.Context, bid model.Bid) error
	RecordSale(ctx context.Context, sale model.Sale) error
}

// Config seeds a new engine. Vehicles and Bidders are fixed for the life
// of the session.
type Config struct {
	Vehicles     []model.Vehicle
	Bidders      []model.Bidder
	Clock        clock.Clock   // defaults to the wall clock
	AdvanceDelay time.Duration // defaults to DefaultAdvanceDelay
	Recorder     Recorder      // optional
}

// Engine owns all mutable auction state. External access goes through
// ApplyBid, CloseVehicle, Snapshot, and the event subscription surface;
// no collaborator holds a direct mutable reference.
type Engine struct {
	mu      sync.Mutex
	session *session
	ledger  *ledger.Ledger
	bidders map[string]model.Bidder // static metadata; balances live in the ledger
	order   []string                // bidder iteration order for snapshots
	closed  bool

	clk          clock.Clock
	advanceDelay time.Duration
	recorder     Recorder

	// Exactly one advancement timer may be pending; a new sale or Close
	// supersedes it via the sequence number and cancels the old handle.
	advanceSeq    int
	advanceCancel clock.CancelFunc

	subsMu sync.RWMutex
	subs   []func(Event)
}

// NewEngine validates the seed and starts a live session with the first
// vehicle on the block.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.Vehicles) == 0 {
		return nil, ErrNoVehicles
	}
	if len(cfg.Bidders) == 0 {
		return nil, ErrNoBidders
	}
	seen := make(map[string]bool, len(cfg.Vehicles))
	for _, v := range cfg.Vehicles {
		if seen[v.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVehicle, v.ID)
		}
		seen[v.ID] = true
	}

	e := &Engine{
		session:      newSession(cfg.Vehicles),
		ledger:       ledger.New(cfg.Bidders),
		bidders:      make(map[string]model.Bidder, len(cfg.Bidders)),
		clk:          cfg.Clock,
		advanceDelay: cfg.AdvanceDelay,
		recorder:     cfg.Recorder,
	}
	for _, b := range cfg.Bidders {
		e.bidders[b.ID] = b
		e.order = append(e.order, b.ID)
	}
	if e.clk == nil {
		e.clk = clock.New()
	}
	if e.advanceDelay <= 0 {
		e.advanceDelay = DefaultAdvanceDelay
	}
	return e, nil
}

// Subscribe registers a callback for emitted events. Callbacks run while
// the engine mutex is held so events always arrive in state order; they
// must be fast, non-blocking, and must not call back into the engine.
// The ws hub satisfies this with a buffered, drop-on-full channel send.
func (e *Engine) Subscribe(fn func(Event)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, fn)
}

// ApplyBid validates and applies one bid as a single atomic unit. A bid
// with an empty VehicleID targets the vehicle currently on the block,
// resolved inside the critical section so it cannot race an advancement.
func (e *Engine) ApplyBid(bid model.Bid) Result {
	e.mu.Lock()
	res, acceptedBid, sale := e.applyLocked(bid)
	e.publish(res.Events...)
	e.mu.Unlock()

	if acceptedBid != nil {
		e.record(acceptedBid, sale)
	}
	return res
}

func (e *Engine) applyLocked(bid model.Bid) (Result, *model.Bid, *model.Sale) {
	now := e.clk.Now()
	if bid.VehicleID == "" {
		if v := e.session.current(); v != nil {
			bid.VehicleID = v.ID
		}
	}
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	if bid.Timestamp.IsZero() {
		bid.Timestamp = now
	}

	if reason, msg, ok := e.validateLocked(bid); !ok {
		slog.Info("bid rejected",
			"vehicle", bid.VehicleID,
			"bidder", bid.BidderID,
			"amount", bid.Amount.String(),
			"reason", string(reason),
		)
		rejected := Event{
			Type: EventBidRejected,
			Payload: BidRejectedPayload{
				VehicleID: bid.VehicleID,
				BidderID:  bid.BidderID,
				Amount:    bid.Amount,
				Reason:    reason,
				Message:   msg,
			},
			Timestamp: now,
		}
		return Result{Accepted: false, Reason: reason, Message: msg, Events: []Event{rejected}}, nil, nil
	}

	v := e.session.byID[bid.VehicleID]
	prevLeader, prevAmount := v.CurrentLeaderID, v.CurrentBid

	// Move the credit. The validator ran under this same lock, so these
	// cannot fail while invariants hold; if they somehow do, restore the
	// previous reservation and reject without partial mutation.
	var err error
	if prevLeader == bid.BidderID {
		err = e.ledger.Swap(bid.BidderID, prevAmount, bid.Amount)
	} else {
		if prevLeader != "" {
			if relErr := e.ledger.Release(prevLeader, prevAmount); relErr != nil {
				err = relErr
			}
		}
		if err == nil {
			if err = e.ledger.Reserve(bid.BidderID, bid.Amount); err != nil && prevLeader != "" {
				_ = e.ledger.Reserve(prevLeader, prevAmount)
			}
		}
	}
	if err != nil {
		msg := fmt.Sprintf("credit reservation failed: %v", err)
		return Result{Accepted: false, Reason: RejectInsufficientCredit, Message: msg,
			Events: []Event{{Type: EventBidRejected, Payload: BidRejectedPayload{
				VehicleID: bid.VehicleID, BidderID: bid.BidderID, Amount: bid.Amount,
				Reason: RejectInsufficientCredit, Message: msg,
			}, Timestamp: now}}}, nil, nil
	}

	v.CurrentBid = bid.Amount
	v.CurrentLeaderID = bid.BidderID
	e.session.appendBid(bid)

	var sale *model.Sale
	if v.HasTarget() && bid.Amount.GreaterThanOrEqual(v.TargetPrice) {
		sale = e.sellLocked(v, now)
	}

	vehicleSnap := e.session.vehicleSnapshot(v)
	bidderSnap := e.bidderSnapshotLocked(bid.BidderID)

	events := []Event{{
		Type:      EventBidAccepted,
		Payload:   BidUpdatePayload{Vehicle: vehicleSnap, Bidder: bidderSnap},
		Timestamp: now,
	}}
	if sale != nil {
		events = append(events, Event{
			Type:      EventStateChanged,
			Payload:   VehicleSoldPayload{Vehicle: vehicleSnap},
			Timestamp: now,
		})
	}

	slog.Info("bid accepted",
		"vehicle", bid.VehicleID,
		"bidder", bid.BidderID,
		"amount", bid.Amount.String(),
		"sold", sale != nil,
	)

	res := Result{Accepted: true, Vehicle: &vehicleSnap, Bidder: &bidderSnap, Events: events}
	return res, &bid, sale
}

// sellLocked transitions an ACTIVE vehicle to SOLD, freezes the winner,
// and arms the advancement timer.
func (e *Engine) sellLocked(v *model.Vehicle, now time.Time) *model.Sale {
	v.State = model.VehicleSold
	v.WinnerID = v.CurrentLeaderID
	soldAt := now
	v.SoldAt = &soldAt

	if e.advanceCancel != nil {
		e.advanceCancel()
	}
	e.advanceSeq++
	seq := e.advanceSeq
	e.advanceCancel = e.clk.After(e.advanceDelay, func() { e.advanceAfterSale(seq) })

	return &model.Sale{
		ID:          uuid.New().String(),
		VehicleID:   v.ID,
		WinnerID:    v.WinnerID,
		HammerPrice: v.CurrentBid,
		Timestamp:   now,
	}
}

// advanceAfterSale fires when the post-sale delay elapses. A newer sale or
// an engine Close supersedes it via the sequence number.
func (e *Engine) advanceAfterSale(seq int) {
	e.mu.Lock()
	if e.closed || seq != e.advanceSeq || e.session.state == model.SessionEnded {
		e.mu.Unlock()
		return
	}
	e.advanceCancel = nil
	now := e.clk.Now()

	next, ended := e.session.advance()
	index := e.session.activeIndex
	var ev Event
	if ended {
		ev = Event{Type: EventAuctionEnded, Timestamp: now}
	} else {
		ev = Event{
			Type: EventStateChanged,
			Payload: VehicleAdvancePayload{
				Vehicle: e.session.vehicleSnapshot(next),
				Index:   index,
			},
			Timestamp: now,
		}
	}
	e.publish(ev)
	e.mu.Unlock()

	if ended {
		slog.Info("auction ended")
	} else {
		slog.Info("vehicle on the block", "vehicle", next.ID, "index", index)
	}
}

// CloseVehicle hammers the vehicle currently on the block: it sells to the
// current leader at the current bid even below target. Covers no-reserve
// lots that can never auto-sell.
func (e *Engine) CloseVehicle() (Result, error) {
	e.mu.Lock()
	v := e.session.current()
	if e.closed || e.session.state == model.SessionEnded || v == nil || v.State != model.VehicleActive {
		e.mu.Unlock()
		return Result{}, ErrNoActiveVehicle
	}
	if v.CurrentLeaderID == "" {
		e.mu.Unlock()
		return Result{}, ErrNoLeadingBid
	}

	now := e.clk.Now()
	sale := e.sellLocked(v, now)
	vehicleSnap := e.session.vehicleSnapshot(v)
	bidderSnap := e.bidderSnapshotLocked(v.WinnerID)
	ev := Event{Type: EventStateChanged, Payload: VehicleSoldPayload{Vehicle: vehicleSnap}, Timestamp: now}
	e.publish(ev)
	e.mu.Unlock()

	slog.Info("vehicle hammered", "vehicle", vehicleSnap.ID, "winner", vehicleSnap.WinnerID,
		"price", vehicleSnap.CurrentBid.String())

	e.record(nil, sale)
	return Result{Accepted: true, Vehicle: &vehicleSnap, Bidder: &bidderSnap, Events: []Event{ev}}, nil
}

// Snapshot returns a deep, read-only view of the session. Safe to call
// concurrently with ApplyBid; callers never observe a partially applied bid.
func (e *Engine) Snapshot() model.SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := model.SessionSnapshot{
		State:               e.session.state,
		CurrentVehicleIndex: e.session.activeIndex,
	}
	for _, v := range e.session.vehicles {
		snap.Vehicles = append(snap.Vehicles, e.session.vehicleSnapshot(v))
	}
	for _, id := range e.order {
		snap.Bidders = append(snap.Bidders, e.bidderSnapshotLocked(id))
	}
	if cur := e.session.current(); cur != nil {
		vs := e.session.vehicleSnapshot(cur)
		snap.CurrentVehicle = &vs
	}
	return snap
}

// Close tears the session down. The pending advancement timer, if any, is
// cancelled synchronously so it can never mutate a replaced session.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.advanceSeq++
	if e.advanceCancel != nil {
		e.advanceCancel()
		e.advanceCancel = nil
	}
}

func (e *Engine) bidderSnapshotLocked(id string) model.BidderSnapshot {
	b := e.bidders[id]
	limit, used, err := e.ledger.Balance(id)
	if err != nil {
		limit, used = b.CreditLimit, b.CreditUsed
	}
	return model.BidderSnapshot{
		ID:              b.ID,
		Badge:           b.Badge,
		Name:            b.Name,
		CreditLimit:     limit,
		CreditUsed:      used,
		AvailableCredit: limit.Sub(used),
	}
}

// publish fans events out to subscribers. State-derived events are
// published with the engine mutex held so no two ApplyBid calls can
// interleave their emissions; operational errors from record go out
// unlocked.
func (e *Engine) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.subsMu.RLock()
	subs := make([]func(Event), len(e.subs))
	copy(subs, e.subs)
	e.subsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// record ships accepted bids and sales to the archive best-effort.
func (e *Engine) record(bid *model.Bid, sale *model.Sale) {
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if bid != nil {
		if err := e.recorder.RecordBid(ctx, *bid); err != nil {
			slog.Error("archive bid failed", "bid", bid.ID, "err", err)
			e.publish(Event{Type: EventError, Payload: ErrorPayload{Op: "record_bid", Message: err.Error()}, Timestamp: e.clk.Now()})
		}
	}
	if sale != nil {
		if err := e.recorder.RecordSale(ctx, *sale); err != nil {
			slog.Error("archive sale failed", "sale", sale.ID, "err", err)
			e.publish(Event{Type: EventError, Payload: ErrorPayload{Op: "record_sale", Message: err.Error()}, Timestamp: e.clk.Now()})
		}
	}
}
