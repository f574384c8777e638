package rules

import (
	"fmt"

	"ChipClash/internal/game/ledger"
	"ChipClash/internal/game/strategy"
	"ChipClash/internal/game/table"
)

// Transfer moves chips from one of the team's future rounds into the round
// being played.
type Transfer struct {
	FromRound int `json:"fromRound"`
	Amount    int `json:"amount"`
}

// SubmitStrategy validates and locks a team's allocation. A locked team or a
// finished match ignores the call.
func SubmitStrategy(r *table.Room, teamID string, s table.Strategy) (bool, error) {
	t := r.TeamByID(teamID)
	if t == nil || t.IsReady || r.Finished() {
		return false, nil
	}
	if err := strategy.Validate(s); err != nil {
		return false, err
	}
	t.Strategy = s
	t.IsReady = true
	if err := strategy.Seal(t); err != nil {
		return false, err
	}
	record(r, teamID, table.ActionSubmit)
	return true, nil
}

// Override locks a strategy without validation. It is the administrative
// escape hatch for demos and is only honoured before the first round has been
// entered.
func Override(r *table.Room, teamID string, s table.Strategy) (bool, error) {
	t := r.TeamByID(teamID)
	m := &r.Match
	if t == nil || len(m.History) > 0 || m.CurrentRound != 1 || m.RoundStatus != table.StatusReady {
		return false, nil
	}
	for i := range s {
		s[i].Round = i + 1
	}
	t.Strategy = s
	t.IsReady = true
	if err := strategy.Seal(t); err != nil {
		return false, err
	}
	record(r, teamID, table.ActionOverride)
	return true, nil
}

func decider(r *table.Room, teamID string) table.Side {
	m := &r.Match
	if m.RoundStatus != table.StatusDecision || m.TurnOwner == "" || m.TurnOwner != teamID {
		return table.SideNone
	}
	return r.SideOf(teamID)
}

// Fold concedes the round: the opponent takes both bets plus any carry-over.
func Fold(r *table.Room, teamID string) (bool, error) {
	side := decider(r, teamID)
	if side == table.SideNone {
		return false, nil
	}
	if err := verify(r); err != nil {
		return false, err
	}
	m := &r.Match
	a, b := roundChips(r, table.SideA), roundChips(r, table.SideB)
	pot := ledger.Pot(a, b, m.CarryOver)
	setBalances(r, ledger.ApplyFold(balances(r), side, pot))
	m.CarryOver = 0
	resolve(r, roundResult(r, side.Folded(), pot))
	record(r, teamID, table.ActionFold)
	return true, nil
}

// Call matches the opponent's bet out of the caller's winnings. When the
// winnings cannot cover it, the call waits in DECISION for a Steal.
func Call(r *table.Room, teamID string) (bool, error) {
	side := decider(r, teamID)
	if side == table.SideNone {
		return false, nil
	}
	m := &r.Match
	own := r.Team(side).Strategy.At(m.CurrentRound)
	diff := roundChips(r, side.Other()) - own.Chips
	if diff <= 0 {
		return false, fmt.Errorf("%w: turn owner %s does not hold fewer chips", ErrCorruptRoom, teamID)
	}

	bal := balances(r)
	if needed := ledger.Shortfall(bal, side, diff); needed > 0 {
		pending := &table.PendingSteal{TeamID: teamID, Round: m.CurrentRound, Diff: diff, Needed: needed}
		if m.PendingSteal != nil && *m.PendingSteal == *pending {
			return false, nil
		}
		m.PendingSteal = pending
		record(r, teamID, table.ActionCall)
		return true, nil
	}

	setBalances(r, ledger.Debit(bal, side, diff))
	own.Chips += diff
	toShowdown(r)
	record(r, teamID, table.ActionCall)
	return true, nil
}

// Steal covers an underfunded call with chips taken from the caller's own
// future rounds. Either every transfer is applied or none is. Without a
// pending underfunded call from this team in this round it is a no-op.
func Steal(r *table.Room, teamID string, transfers []Transfer) (bool, error) {
	side := decider(r, teamID)
	if side == table.SideNone {
		return false, nil
	}
	m := &r.Match
	// 只有资金不足的跟注才能进入偷取
	if ps := m.PendingSteal; ps == nil || ps.TeamID != teamID || ps.Round != m.CurrentRound {
		return false, nil
	}
	t := r.Team(side)
	own := t.Strategy.At(m.CurrentRound)
	diff := roundChips(r, side.Other()) - own.Chips
	needed := ledger.Shortfall(balances(r), side, diff)
	if diff <= 0 || needed == 0 {
		return false, fmt.Errorf("%w: call is covered by winnings", ErrInvalidSteal)
	}

	taken := make(map[int]int, len(transfers))
	total := 0
	for _, tr := range transfers {
		if tr.FromRound <= m.CurrentRound || tr.FromRound > table.Rounds {
			return false, fmt.Errorf("%w: round %d is not a future round", ErrInvalidSteal, tr.FromRound)
		}
		if tr.Amount < 1 {
			return false, fmt.Errorf("%w: amount %d from round %d", ErrInvalidSteal, tr.Amount, tr.FromRound)
		}
		taken[tr.FromRound] += tr.Amount
		if left := t.Strategy.At(tr.FromRound).Chips - taken[tr.FromRound]; left < table.MinChips {
			return false, fmt.Errorf("%w: round %d would drop to %d chips", ErrInvalidSteal, tr.FromRound, left)
		}
		total += tr.Amount
	}
	if total < needed {
		return false, fmt.Errorf("%w: stole %d, need %d", ErrInvalidSteal, total, needed)
	}

	for round, amount := range taken {
		t.Strategy.At(round).Chips -= amount
	}
	t.Winnings = 0
	own.Chips += diff
	toShowdown(r)
	record(r, teamID, table.ActionSteal)
	return true, nil
}

// CancelSteal abandons an underfunded call; the team is back to choosing.
func CancelSteal(r *table.Room, teamID string) (bool, error) {
	if decider(r, teamID) == table.SideNone || r.Match.PendingSteal == nil {
		return false, nil
	}
	r.Match.PendingSteal = nil
	record(r, teamID, table.ActionCancelSteal)
	return true, nil
}

func toShowdown(r *table.Room) {
	m := &r.Match
	m.RoundStatus = table.StatusShowdown
	m.TurnOwner = ""
	m.PendingSteal = nil
	m.Pot = ledger.Pot(roundChips(r, table.SideA), roundChips(r, table.SideB), m.CarryOver)
}

// Showdown compares the round's cards. Either team may trigger it.
func Showdown(r *table.Room, teamID string) (bool, error) {
	m := &r.Match
	if m.RoundStatus != table.StatusShowdown || r.SideOf(teamID) == table.SideNone {
		return false, nil
	}
	if err := verify(r); err != nil {
		return false, err
	}
	ra, rb := r.TeamA.Strategy.At(m.CurrentRound), r.TeamB.Strategy.At(m.CurrentRound)
	if ra.Card == table.NoCard || rb.Card == table.NoCard {
		return false, fmt.Errorf("%w: round %d has no card", ErrCorruptRoom, m.CurrentRound)
	}

	pot := ledger.Pot(ra.Chips, rb.Chips, m.CarryOver)
	bal := balances(r)
	var res table.RoundResult
	switch {
	case ra.Card > rb.Card:
		setBalances(r, ledger.ApplyWin(bal, table.SideA, pot))
		m.TeamAScore++
		m.CarryOver = 0
		res = roundResult(r, table.OutcomeAWon, pot)
	case rb.Card > ra.Card:
		setBalances(r, ledger.ApplyWin(bal, table.SideB, pot))
		m.TeamBScore++
		m.CarryOver = 0
		res = roundResult(r, table.OutcomeBWon, pot)
	default:
		bal, carry := ledger.ApplyDraw(bal, pot, m.CurrentRound == table.Rounds)
		setBalances(r, bal)
		m.CarryOver = carry
		res = roundResult(r, table.OutcomeDraw, 0)
	}
	resolve(r, res)
	record(r, teamID, table.ActionShowdown)
	return true, nil
}

func roundResult(r *table.Room, o table.Outcome, potWon int) table.RoundResult {
	round := r.Match.CurrentRound
	ra, rb := r.TeamA.Strategy.At(round), r.TeamB.Strategy.At(round)
	return table.RoundResult{
		Round:      round,
		TeamACard:  ra.Card,
		TeamBCard:  rb.Card,
		TeamAChips: ra.Chips,
		TeamBChips: rb.Chips,
		Result:     o,
		PotWon:     potWon,
	}
}

func verify(r *table.Room) error {
	if err := strategy.VerifyCommitment(&r.TeamA); err != nil {
		return err
	}
	return strategy.VerifyCommitment(&r.TeamB)
}

// CheckAdvice reports whether the team may still ask the advisor.
func CheckAdvice(r *table.Room, teamID string, max int) error {
	if r.SideOf(teamID) == table.SideNone || r.Finished() {
		return fmt.Errorf("%w: match is not open to team %s", ErrAdviceExhausted, teamID)
	}
	if r.Match.AIHelpCounter[teamID] >= max {
		return fmt.Errorf("%w: %d of %d used", ErrAdviceExhausted, r.Match.AIHelpCounter[teamID], max)
	}
	return nil
}

// UseAdvice counts one advisor request against the team's cap.
func UseAdvice(r *table.Room, teamID string, max int) (bool, error) {
	if err := CheckAdvice(r, teamID, max); err != nil {
		return false, err
	}
	if r.Match.AIHelpCounter == nil {
		r.Match.AIHelpCounter = map[string]int{}
	}
	r.Match.AIHelpCounter[teamID]++
	record(r, teamID, table.ActionAdvice)
	return true, nil
}
