package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/b-harvest/gravity-vault/schema"
	"github.com/b-harvest/gravity-vault/service/vault"
	"github.com/b-harvest/gravity-vault/util"
)

func EntryFromReceipt(seq int64, r *vault.Receipt) schema.JournalEntry {
	return schema.JournalEntry{
		ID:           r.ID.String(),
		Sequence:     seq,
		Kind:         string(r.Kind),
		Caller:       r.Caller.Hex(),
		Counterparty: r.Counterparty.Hex(),
		Amount:       r.Amount.Dec(),
		Timestamp:    r.Timestamp.UTC(),
	}
}

func OperationFromEntry(e schema.JournalEntry) (vault.Operation, error) {
	switch vault.Kind(e.Kind) {
	case vault.KindApprove, vault.KindDeposit, vault.KindWithdraw:
	default:
		return vault.Operation{}, fmt.Errorf("entry #%d: unknown kind %q", e.Sequence, e.Kind)
	}
	for _, a := range []string{e.Caller, e.Counterparty} {
		if !common.IsHexAddress(a) {
			return vault.Operation{}, fmt.Errorf("entry #%d: invalid address %q", e.Sequence, a)
		}
	}
	amount, err := util.ParseAmount(e.Amount)
	if err != nil {
		return vault.Operation{}, fmt.Errorf("entry #%d: %w", e.Sequence, err)
	}
	return vault.Operation{
		Kind:         vault.Kind(e.Kind),
		Caller:       common.HexToAddress(e.Caller),
		Counterparty: common.HexToAddress(e.Counterparty),
		Amount:       amount,
	}, nil
}

type EntryIterator interface {
	IterateEntries(ctx context.Context, cb func(schema.JournalEntry) (stop bool, err error)) error
}

// Replay re-executes every journal entry against v, which must start from the
// same token state the journal was recorded on. It returns the sequence of
// the last applied entry.
func Replay(ctx context.Context, it EntryIterator, v *vault.Vault) (int64, error) {
	var ops []vault.Operation
	var seqs []int64
	if err := it.IterateEntries(ctx, func(e schema.JournalEntry) (stop bool, err error) {
		if len(seqs) > 0 && e.Sequence <= seqs[len(seqs)-1] {
			return true, fmt.Errorf("entry #%d out of order", e.Sequence)
		}
		op, err := OperationFromEntry(e)
		if err != nil {
			return true, err
		}
		ops = append(ops, op)
		seqs = append(seqs, e.Sequence)
		return false, nil
	}); err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if _, err := v.Replay(ctx, ops); err != nil {
		return 0, err
	}
	return seqs[len(seqs)-1], nil
}
