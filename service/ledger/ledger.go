package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("overflow")
)

type account struct {
	balance uint256.Int
	index   int
}

// Ledger keeps the outstanding balance of every depositor along with the
// aggregate counters. Only nonzero balances are stored.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	accounts    map[common.Address]*account
	depositors  []common.Address
	totalAssets uint256.Int
}

func New() *Ledger {
	return &Ledger{accounts: make(map[common.Address]*account)}
}

// CheckCredit reports the error Credit would return for the same arguments,
// without changing anything.
func (l *Ledger) CheckCredit(addr common.Address, amount *uint256.Int) error {
	_, _, err := l.credited(addr, amount)
	return err
}

func (l *Ledger) credited(addr common.Address, amount *uint256.Int) (balance, total uint256.Int, err error) {
	if amount == nil || amount.IsZero() {
		return balance, total, fmt.Errorf("zero amount: %w", ErrInvalidArgument)
	}
	var cur uint256.Int
	if acc, ok := l.accounts[addr]; ok {
		cur = acc.balance
	}
	if _, overflow := balance.AddOverflow(&cur, amount); overflow {
		return balance, total, fmt.Errorf("balance of %s: %w", addr.Hex(), ErrOverflow)
	}
	if _, overflow := total.AddOverflow(&l.totalAssets, amount); overflow {
		return balance, total, fmt.Errorf("total assets: %w", ErrOverflow)
	}
	return balance, total, nil
}

// Credit adds amount to the balance of addr and returns the new balance.
func (l *Ledger) Credit(addr common.Address, amount *uint256.Int) (*uint256.Int, error) {
	balance, total, err := l.credited(addr, amount)
	if err != nil {
		return nil, err
	}
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &account{index: len(l.depositors)}
		l.accounts[addr] = acc
		l.depositors = append(l.depositors, addr)
	}
	acc.balance = balance
	l.totalAssets = total
	return balance.Clone(), nil
}

// Debit subtracts amount from the balance of addr and returns the new
// balance. A depositor whose balance reaches zero leaves the ledger.
func (l *Ledger) Debit(addr common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("zero amount: %w", ErrInvalidArgument)
	}
	acc, ok := l.accounts[addr]
	if !ok || acc.balance.Lt(amount) {
		held := "0"
		if ok {
			held = acc.balance.Dec()
		}
		return nil, fmt.Errorf("debit %s from %s holding %s: %w", amount.Dec(), addr.Hex(), held, ErrInsufficientBalance)
	}
	acc.balance.Sub(&acc.balance, amount)
	l.totalAssets.Sub(&l.totalAssets, amount)
	if acc.balance.IsZero() {
		l.remove(addr, acc)
		return new(uint256.Int), nil
	}
	return acc.balance.Clone(), nil
}

// remove swaps the last depositor into the slot of addr.
func (l *Ledger) remove(addr common.Address, acc *account) {
	last := len(l.depositors) - 1
	moved := l.depositors[last]
	l.depositors[acc.index] = moved
	l.accounts[moved].index = acc.index
	l.depositors = l.depositors[:last]
	delete(l.accounts, addr)
}

func (l *Ledger) BalanceOf(addr common.Address) *uint256.Int {
	if acc, ok := l.accounts[addr]; ok {
		return acc.balance.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) TotalAssets() *uint256.Int {
	return l.totalAssets.Clone()
}

func (l *Ledger) TotalDepositors() uint64 {
	return uint64(len(l.depositors))
}

// IterateDepositors calls cb for every depositor with a positive balance
// until cb returns stop. The order is deterministic for a given history of
// credits and debits. cb must not modify the ledger.
func (l *Ledger) IterateDepositors(cb func(addr common.Address, balance *uint256.Int) (stop bool)) {
	for _, addr := range l.depositors {
		if cb(addr, l.accounts[addr].balance.Clone()) {
			return
		}
	}
}
