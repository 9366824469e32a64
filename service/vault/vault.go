package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/service/asset"
	"github.com/b-harvest/gravity-vault/service/leaderboard"
	"github.com/b-harvest/gravity-vault/service/ledger"
)

var ErrTransferFailed = errors.New("asset transfer failed")

type Kind string

const (
	KindApprove  Kind = "approve"
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Receipt describes a committed operation. Counterparty is the spender,
// beneficiary or recipient depending on Kind. Balance is the caller's
// allowance to the vault for approvals, and the changed ledger balance
// otherwise.
type Receipt struct {
	ID           uuid.UUID
	Kind         Kind
	Caller       common.Address
	Counterparty common.Address
	Amount       *uint256.Int
	Balance      *uint256.Int
	Timestamp    time.Time

	undo undo
}

// undo holds what Revert needs to put back.
type undo struct {
	allowance *uint256.Int
	top       leaderboard.Snapshot
}

type Metadata struct {
	Name    string
	Symbol  string
	Address common.Address
}

// State is a consistent copy of the vault's counters and ranking.
type State struct {
	TotalAssets     *uint256.Int
	TotalDepositors uint64
	Top             leaderboard.Snapshot
}

// Vault takes custody of a Token on behalf of depositors. All operations are
// serialized; a failed operation leaves the ledger and the leaderboard as
// they were.
type Vault struct {
	md     Metadata
	token  asset.Token
	ledger *ledger.Ledger
	lb     *leaderboard.Leaderboard
	logger *zap.Logger
	now    func() time.Time
	mux    sync.Mutex

	// last is the most recent receipt that can still be reverted.
	last *Receipt
}

func New(md Metadata, token asset.Token, logger *zap.Logger) (*Vault, error) {
	if md.Address == (common.Address{}) {
		return nil, fmt.Errorf("vault address: %w", ledger.ErrInvalidArgument)
	}
	if md.Address == token.Address() {
		return nil, fmt.Errorf("vault address equals asset address: %w", ledger.ErrInvalidArgument)
	}
	return &Vault{
		md:     md,
		token:  token,
		ledger: ledger.New(),
		lb:     leaderboard.New(),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (v *Vault) Name() string {
	return v.md.Name
}

func (v *Vault) Symbol() string {
	return v.md.Symbol
}

// Asset returns the address of the underlying token.
func (v *Vault) Asset() common.Address {
	return v.token.Address()
}

// Address returns the address holding the vault's custody.
func (v *Vault) Address() common.Address {
	return v.md.Address
}

func (v *Vault) Token() asset.Token {
	return v.token
}

func (v *Vault) TotalAssets() *uint256.Int {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.ledger.TotalAssets()
}

func (v *Vault) TotalDepositors() uint64 {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.ledger.TotalDepositors()
}

func (v *Vault) BalanceOf(addr common.Address) *uint256.Int {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.ledger.BalanceOf(addr)
}

// GetTopTwo returns the two largest depositors; the zero address marks an
// empty slot.
func (v *Vault) GetTopTwo() (common.Address, common.Address) {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.lb.TopTwo()
}

// Rank returns the 1-based leaderboard rank of addr, or 0.
func (v *Vault) Rank(addr common.Address) int {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.lb.Rank(addr)
}

func (v *Vault) State() State {
	v.mux.Lock()
	defer v.mux.Unlock()
	return State{
		TotalAssets:     v.ledger.TotalAssets(),
		TotalDepositors: v.ledger.TotalDepositors(),
		Top:             v.lb.Snapshot(),
	}
}

// IterateDepositors calls cb for every depositor while holding the vault
// lock; cb must not call back into the vault.
func (v *Vault) IterateDepositors(cb func(addr common.Address, balance *uint256.Int) (stop bool)) {
	v.mux.Lock()
	defer v.mux.Unlock()
	v.ledger.IterateDepositors(cb)
}

// Approve lets the vault pull up to amount of owner's tokens.
func (v *Vault) Approve(ctx context.Context, owner common.Address, amount *uint256.Int) (*Receipt, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("owner: %w", ledger.ErrInvalidArgument)
	}
	if amount == nil {
		return nil, fmt.Errorf("nil amount: %w", ledger.ErrInvalidArgument)
	}
	v.mux.Lock()
	defer v.mux.Unlock()
	prev, err := v.token.Allowance(ctx, owner, v.md.Address)
	if err != nil {
		return nil, fmt.Errorf("get allowance: %w: %w", ErrTransferFailed, err)
	}
	if err := v.token.Approve(ctx, owner, v.md.Address, amount); err != nil {
		return nil, fmt.Errorf("approve: %w: %w", ErrTransferFailed, err)
	}
	return v.receipt(KindApprove, owner, v.md.Address, amount, amount.Clone(), undo{allowance: prev, top: v.lb.Snapshot()}), nil
}

// Deposit pulls amount from caller and credits it to beneficiary. It returns
// the beneficiary's new balance in the receipt.
func (v *Vault) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int, beneficiary common.Address) (*Receipt, error) {
	if beneficiary == (common.Address{}) {
		return nil, fmt.Errorf("beneficiary: %w", ledger.ErrInvalidArgument)
	}
	v.mux.Lock()
	defer v.mux.Unlock()
	if err := v.ledger.CheckCredit(beneficiary, amount); err != nil {
		return nil, err
	}
	prev, err := v.token.Allowance(ctx, caller, v.md.Address)
	if err != nil {
		return nil, fmt.Errorf("get allowance of %s: %w: %w", caller.Hex(), ErrTransferFailed, err)
	}
	top := v.lb.Snapshot()
	if err := v.token.TransferFrom(ctx, v.md.Address, caller, v.md.Address, amount); err != nil {
		return nil, fmt.Errorf("pull %s from %s: %w: %w", amount.Dec(), caller.Hex(), ErrTransferFailed, err)
	}
	balance, err := v.ledger.Credit(beneficiary, amount)
	if err != nil {
		// unreachable after CheckCredit under the lock
		return nil, fmt.Errorf("credit: %w", err)
	}
	v.lb.OnBalanceChanged(beneficiary, balance)
	v.logger.Debug("deposited",
		zap.Stringer("caller", caller),
		zap.Stringer("beneficiary", beneficiary),
		zap.String("amount", amount.Dec()),
		zap.String("balance", balance.Dec()))
	return v.receipt(KindDeposit, caller, beneficiary, amount, balance, undo{allowance: prev, top: top}), nil
}

// Withdraw debits amount from caller's balance and sends it to recipient.
// The receipt carries the caller's remaining balance.
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int, recipient common.Address) (*Receipt, error) {
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("recipient: %w", ledger.ErrInvalidArgument)
	}
	v.mux.Lock()
	defer v.mux.Unlock()
	snapshot := v.lb.Snapshot()
	balance, err := v.ledger.Debit(caller, amount)
	if err != nil {
		return nil, err
	}
	v.onBalanceChanged(caller, balance)
	if err := v.token.Transfer(ctx, v.md.Address, recipient, amount); err != nil {
		if _, rerr := v.ledger.Credit(caller, amount); rerr != nil {
			// crediting back what was just debited cannot overflow
			panic(fmt.Sprintf("revert withdraw of %s: %v", caller.Hex(), rerr))
		}
		v.lb.Restore(snapshot)
		v.logger.Warn("reverted withdraw",
			zap.Stringer("caller", caller),
			zap.Stringer("recipient", recipient),
			zap.String("amount", amount.Dec()),
			zap.Error(err))
		return nil, fmt.Errorf("push %s to %s: %w: %w", amount.Dec(), recipient.Hex(), ErrTransferFailed, err)
	}
	v.logger.Debug("withdrew",
		zap.Stringer("caller", caller),
		zap.Stringer("recipient", recipient),
		zap.String("amount", amount.Dec()),
		zap.String("balance", balance.Dec()))
	return v.receipt(KindWithdraw, caller, recipient, amount, balance, undo{top: snapshot}), nil
}

// onBalanceChanged updates the leaderboard after a debit. Once the remaining
// depositors fit on the board they are all seated, which costs at most
// leaderboard.Size updates; larger depositor sets are never scanned.
func (v *Vault) onBalanceChanged(addr common.Address, balance *uint256.Int) {
	v.lb.OnBalanceChanged(addr, balance)
	if !balance.IsZero() || v.ledger.TotalDepositors() > leaderboard.Size {
		return
	}
	v.ledger.IterateDepositors(func(addr common.Address, balance *uint256.Int) bool {
		if v.lb.Rank(addr) == 0 {
			v.lb.OnBalanceChanged(addr, balance)
		}
		return false
	})
}

// Revert undoes r, which must be the last operation committed on v, moving
// the asset back and restoring the allowance, the ledger and the leaderboard.
// It is used when a committed operation could not be recorded.
func (v *Vault) Revert(ctx context.Context, r *Receipt) error {
	v.mux.Lock()
	defer v.mux.Unlock()
	if r == nil || v.last != r {
		return errors.New("only the last committed operation can be reverted")
	}
	switch r.Kind {
	case KindApprove:
		if err := v.token.Approve(ctx, r.Caller, v.md.Address, r.undo.allowance); err != nil {
			return fmt.Errorf("restore allowance: %w: %w", ErrTransferFailed, err)
		}
	case KindDeposit:
		if err := v.token.Transfer(ctx, v.md.Address, r.Caller, r.Amount); err != nil {
			return fmt.Errorf("return %s to %s: %w: %w", r.Amount.Dec(), r.Caller.Hex(), ErrTransferFailed, err)
		}
		if err := v.token.Approve(ctx, r.Caller, v.md.Address, r.undo.allowance); err != nil {
			return fmt.Errorf("restore allowance: %w: %w", ErrTransferFailed, err)
		}
		if _, err := v.ledger.Debit(r.Counterparty, r.Amount); err != nil {
			return fmt.Errorf("debit: %w", err)
		}
	case KindWithdraw:
		if err := v.token.Transfer(ctx, r.Counterparty, v.md.Address, r.Amount); err != nil {
			return fmt.Errorf("reclaim %s from %s: %w: %w", r.Amount.Dec(), r.Counterparty.Hex(), ErrTransferFailed, err)
		}
		if _, err := v.ledger.Credit(r.Caller, r.Amount); err != nil {
			return fmt.Errorf("credit: %w", err)
		}
	default:
		return fmt.Errorf("unknown operation kind %q", r.Kind)
	}
	v.lb.Restore(r.undo.top)
	v.last = nil
	v.logger.Warn("reverted operation",
		zap.Stringer("id", r.ID),
		zap.String("kind", string(r.Kind)),
		zap.Stringer("caller", r.Caller),
		zap.String("amount", r.Amount.Dec()))
	return nil
}

func (v *Vault) receipt(kind Kind, caller, counterparty common.Address, amount, balance *uint256.Int, u undo) *Receipt {
	r := &Receipt{
		ID:           uuid.New(),
		Kind:         kind,
		Caller:       caller,
		Counterparty: counterparty,
		Amount:       amount.Clone(),
		Balance:      balance,
		Timestamp:    v.now(),
		undo:         u,
	}
	v.last = r
	return r
}
