package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Operation is a recorded request that can be executed again.
type Operation struct {
	Kind         Kind
	Caller       common.Address
	Counterparty common.Address
	Amount       *uint256.Int
}

// Apply executes op through the same path as a live request.
func (v *Vault) Apply(ctx context.Context, op Operation) (*Receipt, error) {
	switch op.Kind {
	case KindApprove:
		if op.Counterparty != v.md.Address {
			return nil, fmt.Errorf("approval for %s, not the vault", op.Counterparty.Hex())
		}
		return v.Approve(ctx, op.Caller, op.Amount)
	case KindDeposit:
		return v.Deposit(ctx, op.Caller, op.Amount, op.Counterparty)
	case KindWithdraw:
		return v.Withdraw(ctx, op.Caller, op.Amount, op.Counterparty)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// Replay applies ops in order and stops at the first failure. Starting from
// the same token state, replaying the same operations always produces the
// same ledger and leaderboard.
func (v *Vault) Replay(ctx context.Context, ops []Operation) (int, error) {
	for i, op := range ops {
		select {
		case <-ctx.Done():
			return i, ctx.Err()
		default:
		}
		if _, err := v.Apply(ctx, op); err != nil {
			return i, fmt.Errorf("apply operation #%d (%s): %w", i, op.Kind, err)
		}
	}
	return len(ops), nil
}
