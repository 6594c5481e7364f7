// Package ledger implements per-bidder credit accounting for a live auction.
//
// Each bidder has a fixed credit limit and a running credit-in-use figure.
// The ledger knows nothing about vehicles; it only guarantees that after
// every completed operation 0 ≤ creditUsed ≤ creditLimit holds for every
// bidder. Callers (the auction engine) serialize check-then-reserve pairs.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lanebid/auction-engine/internal/model"
)

var (
	// ErrUnknownBidder is returned for operations on a bidder the ledger
	// was not seeded with.
	ErrUnknownBidder = errors.New("ledger: unknown bidder")

	// ErrInsufficientCredit is returned when a reservation would push a
	// bidder's credit-in-use beyond their limit.
	ErrInsufficientCredit = errors.New("ledger: insufficient credit")

	// ErrInvalidAmount is returned for negative reservation amounts.
	ErrInvalidAmount = errors.New("ledger: amount must not be negative")
)

type account struct {
	limit decimal.Decimal
	used  decimal.Decimal
}

// Ledger tracks credit limits and credit in use per bidder. The bidder set
// is fixed at construction; there is no dynamic add or remove.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

// New creates a ledger seeded with the given bidders. Any pre-existing
// CreditUsed on the seed is honored.
func New(bidders []model.Bidder) *Ledger {
	accounts := make(map[string]*account, len(bidders))
	for _, b := range bidders {
		accounts[b.ID] = &account{limit: b.CreditLimit, used: b.CreditUsed}
	}
	return &Ledger{accounts: accounts}
}

// Exists reports whether the bidder is known to the ledger.
func (l *Ledger) Exists(bidderID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[bidderID]
	return ok
}

// Balance returns (creditLimit, creditUsed) for a bidder.
func (l *Ledger) Balance(bidderID string) (limit, used decimal.Decimal, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[bidderID]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("balance for %s: %w", bidderID, ErrUnknownBidder)
	}
	return a.limit, a.used, nil
}

// HasCredit reports whether amount fits within the bidder's available
// credit. Unknown bidders and oversized amounts both report false; the
// caller distinguishes unknown-bidder separately.
func (l *Ledger) HasCredit(bidderID string, amount decimal.Decimal) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[bidderID]
	if !ok {
		return false
	}
	return amount.LessThanOrEqual(a.limit.Sub(a.used))
}

// Reserve increases the bidder's credit in use by amount. The reservation
// is re-checked against the limit under the ledger lock so creditUsed can
// never exceed creditLimit even if the caller's check was stale.
func (l *Ledger) Reserve(bidderID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserveLocked(bidderID, amount)
}

// Release decreases the bidder's credit in use by amount, floored at zero.
// Releasing more than is in use should never happen if engine invariants
// hold; the floor keeps the books consistent regardless.
func (l *Ledger) Release(bidderID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked(bidderID, amount)
}

// Swap atomically replaces a bidder's previous reservation with a new one,
// used when the same bidder raises their own leading bid. The release and
// reserve happen under one lock acquisition so no concurrent check can
// observe the intermediate balance.
func (l *Ledger) Swap(bidderID string, previous, next decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.releaseLocked(bidderID, previous); err != nil {
		return err
	}
	if err := l.reserveLocked(bidderID, next); err != nil {
		// Restore the previous reservation; a failed swap must not leak credit.
		_ = l.reserveLocked(bidderID, previous)
		return err
	}
	return nil
}

func (l *Ledger) reserveLocked(bidderID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("reserve %s for %s: %w", amount, bidderID, ErrInvalidAmount)
	}
	a, ok := l.accounts[bidderID]
	if !ok {
		return fmt.Errorf("reserve for %s: %w", bidderID, ErrUnknownBidder)
	}
	next := a.used.Add(amount)
	if next.GreaterThan(a.limit) {
		return fmt.Errorf("reserve %s for %s (limit %s, used %s): %w",
			amount, bidderID, a.limit, a.used, ErrInsufficientCredit)
	}
	a.used = next
	return nil
}

func (l *Ledger) releaseLocked(bidderID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("release %s for %s: %w", amount, bidderID, ErrInvalidAmount)
	}
	a, ok := l.accounts[bidderID]
	if !ok {
		return fmt.Errorf("release for %s: %w", bidderID, ErrUnknownBidder)
	}
	a.used = a.used.Sub(amount)
	if a.used.IsNegative() {
		a.used = decimal.Zero
	}
	return nil
}
