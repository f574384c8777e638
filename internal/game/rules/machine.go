// Package rules is the match state machine. Every function mutates the room
// it is handed and reports whether anything changed. An actor that is not
// allowed to act in the current state gets (false, nil): stale clients are
// ignored rather than failed. Callers that need all-or-nothing semantics work
// on a Clone.
package rules

import (
	"errors"
	"fmt"
	"time"

	"ChipClash/internal/game/ledger"
	"ChipClash/internal/game/table"
)

var (
	ErrInvalidSteal    = errors.New("invalid steal")
	ErrAdviceExhausted = errors.New("advice limit reached")
	ErrCorruptRoom     = errors.New("corrupt room record")
)

var now = func() time.Time { return time.Now().UTC() }

func record(r *table.Room, teamID string, kind table.ActionKind) {
	r.Match.LastAction = &table.LastAction{TeamID: teamID, Kind: kind, At: now()}
}

func balances(r *table.Room) ledger.Balances {
	return ledger.Balances{A: r.TeamA.Winnings, B: r.TeamB.Winnings}
}

func setBalances(r *table.Room, b ledger.Balances) {
	r.TeamA.Winnings, r.TeamB.Winnings = b.A, b.B
}

func roundChips(r *table.Room, s table.Side) int {
	return r.Team(s).Strategy.At(r.Match.CurrentRound).Chips
}

// Evaluate enters the round waiting in READY: equal chips go straight to
// SHOWDOWN, otherwise the team with fewer chips owns the DECISION. The
// transition only happens if the room is still READY at the given round with
// both strategies locked, so a duplicate evaluation is a no-op.
func Evaluate(r *table.Room, round int) (bool, error) {
	m := &r.Match
	if m.RoundStatus != table.StatusReady || m.CurrentRound != round || !r.BothReady() {
		return false, nil
	}
	if round < 1 || round > table.Rounds {
		return false, fmt.Errorf("%w: round %d", ErrCorruptRoom, round)
	}

	a, b := roundChips(r, table.SideA), roundChips(r, table.SideB)
	m.Pot = ledger.Pot(a, b, m.CarryOver)
	switch {
	case a == b:
		m.RoundStatus = table.StatusShowdown
		m.TurnOwner = ""
	case a < b:
		m.RoundStatus = table.StatusDecision
		m.TurnOwner = r.TeamA.ID
	default:
		m.RoundStatus = table.StatusDecision
		m.TurnOwner = r.TeamB.ID
	}
	record(r, "", table.ActionEvaluate)
	return true, nil
}

// resolve stores a round result and moves the match to RESULT.
func resolve(r *table.Room, res table.RoundResult) {
	m := &r.Match
	m.History = append(m.History, res)
	m.LastRoundResult = &res
	m.ResultConfirmed = map[string]bool{}
	m.RoundStatus = table.StatusResult
	m.TurnOwner = ""
	m.PendingSteal = nil
	m.Pot = 0
}

// advance moves past a confirmed round.
func advance(r *table.Room) {
	m := &r.Match
	m.ResultConfirmed = map[string]bool{}
	m.LastRoundResult = nil
	m.TurnOwner = ""
	if m.CurrentRound >= table.Rounds {
		m.RoundStatus = table.StatusFinished
		return
	}
	m.CurrentRound++
	m.RoundStatus = table.StatusReady
}

// Allowed lists the intents a team may issue right now.
func Allowed(r *table.Room, teamID string) ([]table.ActionKind, error) {
	side := r.SideOf(teamID)
	if side == table.SideNone {
		return nil, nil
	}
	m := &r.Match
	switch m.RoundStatus {
	case table.StatusReady:
		if !r.Team(side).IsReady {
			return []table.ActionKind{table.ActionSubmit}, nil
		}
		return nil, nil
	case table.StatusDecision:
		if m.TurnOwner != teamID {
			return nil, nil
		}
		out := []table.ActionKind{table.ActionFold, table.ActionCall}
		if m.PendingSteal != nil {
			out = append(out, table.ActionSteal, table.ActionCancelSteal)
		}
		return out, nil
	case table.StatusShowdown:
		return []table.ActionKind{table.ActionShowdown}, nil
	case table.StatusResult:
		if m.ResultConfirmed[teamID] {
			return nil, nil
		}
		return []table.ActionKind{table.ActionConfirm}, nil
	case table.StatusFinished:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: status %q", ErrCorruptRoom, m.RoundStatus)
	}
}
