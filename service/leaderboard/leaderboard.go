// Package leaderboard tracks the two largest depositor balances.
//
// The board only reasons about the identity whose balance changed and its own
// two slots, so every update is constant time. It never looks into the wider
// depositor set: a vacated slot stays empty until some depositor's balance
// changes again and qualifies for it.
package leaderboard

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Size is the number of ranked slots.
const Size = 2

type Entry struct {
	Address common.Address
	Balance uint256.Int
}

func (e Entry) IsEmpty() bool {
	return e.Address == (common.Address{})
}

// Snapshot is a copy of both slots, slot 0 first.
type Snapshot [Size]Entry

// Leaderboard is not safe for concurrent use.
type Leaderboard struct {
	slots Snapshot
}

func New() *Leaderboard {
	return &Leaderboard{}
}

// OnBalanceChanged must be called once after every balance change of addr.
// Ties never displace the incumbent.
func (lb *Leaderboard) OnBalanceChanged(addr common.Address, balance *uint256.Int) {
	if addr == (common.Address{}) {
		return
	}
	i := lb.indexOf(addr)
	switch {
	case i >= 0 && balance.IsZero():
		lb.slots[i] = Entry{}
		if i == 0 {
			lb.slots[0], lb.slots[1] = lb.slots[1], Entry{}
		}
	case i >= 0:
		lb.slots[i].Balance = *balance
		if !lb.slots[1].IsEmpty() && lb.slots[1].Balance.Gt(&lb.slots[0].Balance) {
			lb.slots[0], lb.slots[1] = lb.slots[1], lb.slots[0]
		}
	case balance.IsZero():
	case lb.slots[0].IsEmpty() || balance.Gt(&lb.slots[0].Balance):
		lb.slots[1] = lb.slots[0]
		lb.slots[0] = Entry{Address: addr, Balance: *balance}
	case lb.slots[1].IsEmpty() || balance.Gt(&lb.slots[1].Balance):
		lb.slots[1] = Entry{Address: addr, Balance: *balance}
	}
}

func (lb *Leaderboard) indexOf(addr common.Address) int {
	for i := range lb.slots {
		if lb.slots[i].Address == addr {
			return i
		}
	}
	return -1
}

// TopTwo returns the ranked addresses; the zero address marks an empty slot.
func (lb *Leaderboard) TopTwo() (common.Address, common.Address) {
	return lb.slots[0].Address, lb.slots[1].Address
}

// Rank returns the 1-based rank of addr, or 0 if it is not ranked.
func (lb *Leaderboard) Rank(addr common.Address) int {
	if addr == (common.Address{}) {
		return 0
	}
	return lb.indexOf(addr) + 1
}

func (lb *Leaderboard) Snapshot() Snapshot {
	return lb.slots
}

// Restore puts back the slots taken by an earlier Snapshot.
func (lb *Leaderboard) Restore(s Snapshot) {
	lb.slots = s
}
