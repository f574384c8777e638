// Package ledger holds the chip arithmetic of a round. Every function is pure:
// it takes balances by value and returns the new ones.
package ledger

import "ChipClash/internal/game/table"

// Balances are the two teams' winnings.
type Balances struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (b Balances) Of(s table.Side) int {
	if s == table.SideA {
		return b.A
	}
	return b.B
}

func (b Balances) with(s table.Side, v int) Balances {
	if s == table.SideA {
		b.A = v
	} else {
		b.B = v
	}
	return b
}

func (b Balances) Total() int { return b.A + b.B }

// Pot is everything at stake in a round.
func Pot(aChips, bChips, carryOver int) int {
	return aChips + bChips + carryOver
}

// ApplyWin credits the whole pot to the winning side.
func ApplyWin(b Balances, winner table.Side, pot int) Balances {
	return b.with(winner, b.Of(winner)+pot)
}

// ApplyFold credits the whole pot to the side that did not fold.
func ApplyFold(b Balances, folder table.Side, pot int) Balances {
	return ApplyWin(b, folder.Other(), pot)
}

// ApplyDraw settles a tied round. On the final round the pot is split, with
// the odd chip going to side A; otherwise nobody is paid and the pot carries
// into the next round.
func ApplyDraw(b Balances, pot int, final bool) (Balances, int) {
	if !final {
		return b, pot
	}
	half := pot / 2
	return Balances{A: b.A + half + pot%2, B: b.B + half}, 0
}

// Debit moves amount out of a side's winnings; callers check it is covered.
func Debit(b Balances, s table.Side, amount int) Balances {
	return b.with(s, b.Of(s)-amount)
}

// Shortfall is how much of diff the side's winnings cannot cover.
func Shortfall(b Balances, s table.Side, diff int) int {
	if have := b.Of(s); have < diff {
		return diff - have
	}
	return 0
}
