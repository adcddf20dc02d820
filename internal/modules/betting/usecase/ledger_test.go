package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/livetable/internal/modules/betting/domain"
)

// fakeAccount is a plain balance for ledger tests
type fakeAccount struct {
	balance float64
}

func (a *fakeAccount) Balance() float64            { return a.balance }
func (a *fakeAccount) AdjustBalance(delta float64) { a.balance += delta }

func TestLedger_BeginDebitsAndRollbackRestores(t *testing.T) {
	account := &fakeAccount{balance: 100}
	l := NewLedger(account)

	token, err := l.Begin(30)
	require.NoError(t, err)
	assert.Equal(t, 70.0, account.balance)
	assert.Equal(t, 30.0, l.OpenTotal())

	l.Rollback(token)
	assert.Equal(t, 100.0, account.balance)
	assert.Zero(t, l.OpenTotal())

	// Rollback is idempotent.
	l.Rollback(token)
	assert.Equal(t, 100.0, account.balance)
}

func TestLedger_BeginInsufficient(t *testing.T) {
	account := &fakeAccount{balance: 20}
	l := NewLedger(account)

	_, err := l.Begin(30)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, 20.0, account.balance, "failed begin must not touch the balance")
}

func TestLedger_CommitKeepsDebit(t *testing.T) {
	account := &fakeAccount{balance: 100}
	l := NewLedger(account)

	token, err := l.Begin(30)
	require.NoError(t, err)

	l.Commit(token)
	assert.Equal(t, 70.0, account.balance)

	// A rollback after commit is a no-op.
	l.Rollback(token)
	assert.Equal(t, 70.0, account.balance)
}

func TestLedger_BeginAllIsAllOrNothing(t *testing.T) {
	account := &fakeAccount{balance: 100}
	l := NewLedger(account)

	_, err := l.BeginAll(map[string]float64{"M": 60, "W": 50})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, 100.0, account.balance)

	tokens, err := l.BeginAll(map[string]float64{"M": 60, "W": 40})
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
	assert.Equal(t, 0.0, account.balance)
}

func TestLedger_RollbackAll(t *testing.T) {
	account := &fakeAccount{balance: 100}
	l := NewLedger(account)

	_, err := l.Begin(30)
	require.NoError(t, err)
	committed, err := l.Begin(20)
	require.NoError(t, err)
	l.Commit(committed)

	l.RollbackAll()
	// Only the open debit comes back.
	assert.Equal(t, 80.0, account.balance)
	assert.Zero(t, l.OpenTotal())
}
