package usecase

import (
	"sync"

	"github.com/frankieli/livetable/internal/modules/betting/domain"
)

// Account is the balance the ledger debits against. Implemented by the round
// state store.
type Account interface {
	Balance() float64
	AdjustBalance(delta float64)
}

// DebitToken identifies one optimistic debit. Zero value is invalid.
type DebitToken struct {
	id uint64
}

// Ledger tracks optimistic balance debits. Begin checks sufficiency and
// applies the debit; Commit and Rollback are unconditional and idempotent,
// so double-settling a token is harmless.
type Ledger struct {
	mu      sync.Mutex
	account Account
	nextID  uint64
	open    map[uint64]float64
}

// NewLedger creates a ledger over the given account
func NewLedger(account Account) *Ledger {
	return &Ledger{
		account: account,
		open:    make(map[uint64]float64),
	}
}

// Begin applies an optimistic debit and returns its reversal token
func (l *Ledger) Begin(amount float64) (DebitToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.account.Balance() < amount {
		return DebitToken{}, domain.ErrInsufficientBalance
	}
	l.nextID++
	l.open[l.nextID] = amount
	l.account.AdjustBalance(-amount)
	return DebitToken{id: l.nextID}, nil
}

// BeginAll applies one debit per zone, all or nothing, checking the summed
// amount against the balance first.
func (l *Ledger) BeginAll(amounts map[string]float64) (map[string]DebitToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, amount := range amounts {
		total += amount
	}
	if l.account.Balance() < total {
		return nil, domain.ErrInsufficientBalance
	}

	tokens := make(map[string]DebitToken, len(amounts))
	for zone, amount := range amounts {
		l.nextID++
		l.open[l.nextID] = amount
		tokens[zone] = DebitToken{id: l.nextID}
	}
	l.account.AdjustBalance(-total)
	return tokens, nil
}

// Commit finalizes a debit; the money stays deducted. Idempotent.
func (l *Ledger) Commit(t DebitToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.open, t.id)
}

// Rollback reverses a debit if it is still open. Idempotent.
func (l *Ledger) Rollback(t DebitToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount, ok := l.open[t.id]; ok {
		delete(l.open, t.id)
		l.account.AdjustBalance(amount)
	}
}

// RollbackAll reverses every open debit
func (l *Ledger) RollbackAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, amount := range l.open {
		delete(l.open, id)
		l.account.AdjustBalance(amount)
	}
}

// OpenTotal returns the sum of open debits (for inspection and tests)
func (l *Ledger) OpenTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, amount := range l.open {
		total += amount
	}
	return total
}
