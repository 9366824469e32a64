package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
)

// Token is a fungible asset with approve/transferFrom semantics.
// Transfer moves funds owned by from; TransferFrom moves funds of from on
// behalf of spender and consumes spender's allowance.
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error)
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
}

var _ Token = (*MemToken)(nil)

type allowanceKey struct {
	owner, spender common.Address
}

// MemToken is an in-process Token. An allowance of the maximum value is
// never decreased by TransferFrom.
type MemToken struct {
	addr       common.Address
	balances   map[common.Address]uint256.Int
	allowances map[allowanceKey]uint256.Int
	supply     uint256.Int
	mux        sync.Mutex
}

func NewMemToken(addr common.Address) *MemToken {
	return &MemToken{
		addr:       addr,
		balances:   make(map[common.Address]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
	}
}

func (t *MemToken) Address() common.Address {
	return t.addr
}

// Mint creates amount new tokens owned by to.
func (t *MemToken) Mint(to common.Address, amount *uint256.Int) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrZeroAddress)
	}
	var supply uint256.Int
	if _, overflow := supply.AddOverflow(&t.supply, amount); overflow {
		return fmt.Errorf("mint %s: total supply overflow", amount.Dec())
	}
	b := t.balances[to]
	b.Add(&b, amount)
	t.balances[to] = b
	t.supply = supply
	return nil
}

func (t *MemToken) TotalSupply() *uint256.Int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.supply.Clone()
}

func (t *MemToken) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	t.mux.Lock()
	defer t.mux.Unlock()
	b := t.balances[owner]
	return b.Clone(), nil
}

func (t *MemToken) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	t.mux.Lock()
	defer t.mux.Unlock()
	a := t.allowances[allowanceKey{owner, spender}]
	return a.Clone(), nil
}

func (t *MemToken) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return fmt.Errorf("approve: %w", ErrZeroAddress)
	}
	t.allowances[allowanceKey{owner, spender}] = *amount
	return nil
}

func (t *MemToken) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.move(from, to, amount)
}

func (t *MemToken) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	key := allowanceKey{from, spender}
	a := t.allowances[key]
	if a.Lt(amount) {
		return fmt.Errorf("%s may spend %s of %s, need %s: %w", spender.Hex(), a.Dec(), from.Hex(), amount.Dec(), ErrInsufficientAllowance)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	if a != maxAllowance {
		a.Sub(&a, amount)
		t.allowances[key] = a
	}
	return nil
}

var maxAllowance = *new(uint256.Int).SetAllOne()

func (t *MemToken) move(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return fmt.Errorf("transfer: %w", ErrZeroAddress)
	}
	fb := t.balances[from]
	if fb.Lt(amount) {
		return fmt.Errorf("%s holds %s, need %s: %w", from.Hex(), fb.Dec(), amount.Dec(), ErrInsufficientFunds)
	}
	fb.Sub(&fb, amount)
	t.balances[from] = fb
	tb := t.balances[to]
	tb.Add(&tb, amount)
	t.balances[to] = tb
	return nil
}
