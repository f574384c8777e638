package rules

import (
	"math/rand"
	"testing"

	"ChipClash/internal/game/dealer"
	"ChipClash/internal/game/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strat(cards, chips [table.Rounds]int) table.Strategy {
	var s table.Strategy
	for i := range s {
		s[i] = table.RoundStrategy{Round: i + 1, Card: cards[i], Chips: chips[i]}
	}
	return s
}

var (
	inOrder = [table.Rounds]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	flat    = [table.Rounds]int{3, 3, 3, 3, 3, 3, 3, 3, 3, 3}
)

// newRoom locks both strategies through the normal submission path.
func newRoom(t *testing.T, a, b table.Strategy) *table.Room {
	t.Helper()
	r := table.NewRoom("test", table.Team{ID: "A", Name: "Owls"}, table.Team{ID: "B", Name: "Foxes"}, 0)
	changed, err := SubmitStrategy(r, "A", a)
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = SubmitStrategy(r, "B", b)
	require.NoError(t, err)
	require.True(t, changed)
	return r
}

func TestSubmitStrategyLocks(t *testing.T) {
	r := table.NewRoom("p", table.Team{ID: "A"}, table.Team{ID: "B"}, 0)

	bad := strat(inOrder, flat)
	bad[0].Chips = 2
	changed, err := SubmitStrategy(r, "A", bad)
	require.Error(t, err)
	assert.False(t, changed)
	assert.False(t, r.TeamA.IsReady, "rejected strategy stays editable")

	changed, err = SubmitStrategy(r, "A", strat(inOrder, flat))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, r.TeamA.IsReady)
	assert.NotEmpty(t, r.TeamA.Commitment)
	assert.Equal(t, table.ActionSubmit, r.Match.LastAction.Kind)

	// locked strategies are immutable
	other := strat([table.Rounds]int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, flat)
	changed, err = SubmitStrategy(r, "A", other)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, r.TeamA.Strategy[0].Card)

	// strangers are ignored
	changed, err = SubmitStrategy(r, "Z", other)
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestOverrideBypassesValidation(t *testing.T) {
	r := table.NewRoom("p", table.Team{ID: "A"}, table.Team{ID: "B"}, 0)
	s := strat(inOrder, flat)
	s[0].Chips = 20

	changed, err := Override(r, "A", s)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, r.TeamA.IsReady)
	assert.Equal(t, table.ActionOverride, r.Match.LastAction.Kind)

	r.Match.CurrentRound = 2
	changed, err = Override(r, "A", strat(inOrder, flat))
	require.NoError(t, err)
	assert.False(t, changed, "override is closed once play moved on")
}

func TestEvaluate(t *testing.T) {
	t.Run("waits for both teams", func(t *testing.T) {
		r := table.NewRoom("p", table.Team{ID: "A"}, table.Team{ID: "B"}, 0)
		_, err := SubmitStrategy(r, "A", strat(inOrder, flat))
		require.NoError(t, err)
		changed, err := Evaluate(r, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, table.StatusReady, r.Match.RoundStatus)
	})

	t.Run("equal chips go to showdown", func(t *testing.T) {
		r := newRoom(t, strat(inOrder, flat), strat(inOrder, flat))
		changed, err := Evaluate(r, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, table.StatusShowdown, r.Match.RoundStatus)
		assert.Empty(t, r.Match.TurnOwner)
		assert.Equal(t, 6, r.Match.Pot)
	})

	t.Run("fewer chips decides", func(t *testing.T) {
		b := [table.Rounds]int{2, 4, 3, 3, 3, 3, 3, 3, 3, 3}
		r := newRoom(t, strat(inOrder, flat), strat(inOrder, b))
		changed, err := Evaluate(r, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, table.StatusDecision, r.Match.RoundStatus)
		assert.Equal(t, "B", r.Match.TurnOwner)
	})

	t.Run("duplicate or stale evaluation is a no-op", func(t *testing.T) {
		r := newRoom(t, strat(inOrder, flat), strat(inOrder, flat))
		_, err := Evaluate(r, 1)
		require.NoError(t, err)
		before := r.Clone()

		changed, err := Evaluate(r, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		changed, err = Evaluate(r, 2)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, before, r)
	})
}

// underdog calls out of winnings and wins the showdown.
func TestScenarioCallThenWin(t *testing.T) {
	a := strat([table.Rounds]int{0, 1, 5, 2, 3, 4, 6, 7, 8, 9}, [table.Rounds]int{3, 3, 2, 3, 3, 3, 3, 3, 3, 4})
	b := strat([table.Rounds]int{0, 1, 3, 2, 4, 5, 6, 7, 8, 9}, [table.Rounds]int{3, 3, 5, 3, 3, 3, 3, 3, 2, 2})
	r := newRoom(t, a, b)
	r.Match.CurrentRound = 3
	r.TeamA.Winnings = 10

	_, err := Evaluate(r, 3)
	require.NoError(t, err)
	require.Equal(t, table.StatusDecision, r.Match.RoundStatus)
	require.Equal(t, "A", r.Match.TurnOwner)

	// B is not the turn owner
	changed, err := Call(r, "B")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = Call(r, "A")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, 7, r.TeamA.Winnings)
	assert.Equal(t, 5, r.TeamA.Strategy[2].Chips)
	assert.Equal(t, table.StatusShowdown, r.Match.RoundStatus)

	changed, err = Showdown(r, "B")
	require.NoError(t, err)
	require.True(t, changed)

	res := r.Match.LastRoundResult
	require.NotNil(t, res)
	assert.Equal(t, table.OutcomeAWon, res.Result)
	assert.Equal(t, 10, res.PotWon)
	assert.Equal(t, 17, r.TeamA.Winnings)
	assert.Equal(t, 1, r.Match.TeamAScore)
	assert.Equal(t, 0, r.Match.CarryOver)
	assert.Equal(t, table.StatusResult, r.Match.RoundStatus)
	assert.Len(t, r.Match.History, 1)
}

// final-round draw splits the pot including the carry-over.
func TestScenarioFinalDrawSplits(t *testing.T) {
	cards := [table.Rounds]int{0, 1, 2, 3, 4, 5, 6, 8, 9, 7}
	chips := [table.Rounds]int{3, 3, 3, 3, 3, 3, 3, 3, 2, 4}
	r := newRoom(t, strat(cards, chips), strat(cards, chips))
	r.Match.CurrentRound = 10
	r.Match.CarryOver = 2

	_, err := Evaluate(r, 10)
	require.NoError(t, err)
	require.Equal(t, table.StatusShowdown, r.Match.RoundStatus)

	_, err = Showdown(r, "A")
	require.NoError(t, err)
	res := r.Match.LastRoundResult
	assert.Equal(t, table.OutcomeDraw, res.Result)
	assert.Equal(t, 0, res.PotWon)
	assert.Equal(t, 5, r.TeamA.Winnings)
	assert.Equal(t, 5, r.TeamB.Winnings)
	assert.Equal(t, 0, r.Match.CarryOver)
	assert.Equal(t, 0, r.Match.TeamAScore+r.Match.TeamBScore)
}

func TestNonFinalDrawCarries(t *testing.T) {
	r := newRoom(t, strat(inOrder, flat), strat(inOrder, flat))
	r.Match.CarryOver = 1
	_, err := Evaluate(r, 1)
	require.NoError(t, err)
	_, err = Showdown(r, "B")
	require.NoError(t, err)

	assert.Equal(t, table.OutcomeDraw, r.Match.LastRoundResult.Result)
	assert.Equal(t, 0, r.Match.LastRoundResult.PotWon)
	assert.Equal(t, 7, r.Match.CarryOver)
	assert.Equal(t, 0, r.TeamA.Winnings)
	assert.Equal(t, 0, r.TeamB.Winnings)
}

// a fold pays the opponent and waits for both confirmations.
func TestScenarioFoldThenConfirm(t *testing.T) {
	b := [table.Rounds]int{3, 3, 3, 3, 6, 3, 3, 2, 2, 2}
	r := newRoom(t, strat(inOrder, flat), strat(inOrder, b))
	r.Match.CurrentRound = 5
	r.Match.CarryOver = 1

	_, err := Evaluate(r, 5)
	require.NoError(t, err)
	require.Equal(t, "A", r.Match.TurnOwner)

	changed, err := Fold(r, "A")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, 10, r.TeamB.Winnings)
	assert.Equal(t, 0, r.TeamA.Winnings)
	assert.Equal(t, table.OutcomeAFolded, r.Match.LastRoundResult.Result)
	assert.Equal(t, 10, r.Match.LastRoundResult.PotWon)
	assert.Equal(t, 0, r.Match.CarryOver)
	assert.Equal(t, 0, r.Match.TeamBScore, "folds do not score")

	changed, advanced := Confirm(r, "A")
	assert.True(t, changed)
	assert.False(t, advanced)
	assert.Equal(t, 5, r.Match.CurrentRound)

	changed, advanced = Confirm(r, "A")
	assert.False(t, changed, "confirm is idempotent")
	assert.False(t, advanced)

	changed, advanced = Confirm(r, "B")
	assert.True(t, changed)
	assert.True(t, advanced)
	assert.Equal(t, 6, r.Match.CurrentRound)
	assert.Equal(t, table.StatusReady, r.Match.RoundStatus)
	assert.Empty(t, r.Match.ResultConfirmed)
	assert.Nil(t, r.Match.LastRoundResult)
}

// confirming outside RESULT changes nothing.
func TestScenarioConfirmDuringDecision(t *testing.T) {
	b := [table.Rounds]int{2, 4, 3, 3, 3, 3, 3, 3, 3, 3}
	r := newRoom(t, strat(inOrder, flat), strat(inOrder, b))
	_, err := Evaluate(r, 1)
	require.NoError(t, err)
	before := r.Clone()

	changed, advanced := Confirm(r, "A")
	assert.False(t, changed)
	assert.False(t, advanced)
	assert.Equal(t, before, r)
	assert.Empty(t, r.Match.ResultConfirmed)
}

func TestLastRoundConfirmFinishes(t *testing.T) {
	r := newRoom(t, strat(inOrder, flat), strat([table.Rounds]int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, flat))
	r.Match.CurrentRound = 10
	_, err := Evaluate(r, 10)
	require.NoError(t, err)
	_, err = Showdown(r, "A")
	require.NoError(t, err)
	Confirm(r, "A")
	_, advanced := Confirm(r, "B")

	assert.True(t, advanced)
	assert.Equal(t, table.StatusFinished, r.Match.RoundStatus)
	assert.Equal(t, 10, r.Match.CurrentRound)
}

func underfundedRoom(t *testing.T) *table.Room {
	t.Helper()
	a := [table.Rounds]int{2, 3, 3, 3, 3, 3, 3, 3, 3, 4}
	b := [table.Rounds]int{5, 3, 3, 3, 3, 3, 3, 3, 2, 2}
	r := newRoom(t, strat(inOrder, a), strat([table.Rounds]int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, b))
	r.TeamA.Winnings = 1
	_, err := Evaluate(r, 1)
	require.NoError(t, err)
	require.Equal(t, "A", r.Match.TurnOwner)
	return r
}

func TestUnderfundedCallWaitsForSteal(t *testing.T) {
	r := underfundedRoom(t)

	changed, err := Call(r, "A")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, table.StatusDecision, r.Match.RoundStatus)
	require.NotNil(t, r.Match.PendingSteal)
	assert.Equal(t, 3, r.Match.PendingSteal.Diff)
	assert.Equal(t, 2, r.Match.PendingSteal.Needed)
	assert.Equal(t, 1, r.TeamA.Winnings, "nothing debited yet")

	changed, err = Call(r, "A")
	require.NoError(t, err)
	assert.False(t, changed, "repeating the call is a no-op")

	allowed, err := Allowed(r, "A")
	require.NoError(t, err)
	assert.Contains(t, allowed, table.ActionSteal)
}

func TestStealRejectsWithoutPartialApplication(t *testing.T) {
	r := underfundedRoom(t)
	_, err := Call(r, "A")
	require.NoError(t, err)
	before := r.Clone()

	cases := map[string][]Transfer{
		"current round": {{FromRound: 1, Amount: 2}},
		"past the end":  {{FromRound: 11, Amount: 2}},
		"below floor":   {{FromRound: 2, Amount: 3}},
		"floor across transfers": {
			{FromRound: 2, Amount: 1},
			{FromRound: 2, Amount: 2},
		},
		"short":       {{FromRound: 2, Amount: 1}},
		"zero amount": {{FromRound: 2, Amount: 0}, {FromRound: 3, Amount: 2}},
		"nothing":     nil,
	}
	for name, transfers := range cases {
		t.Run(name, func(t *testing.T) {
			changed, err := Steal(r, "A", transfers)
			assert.ErrorIs(t, err, ErrInvalidSteal)
			assert.False(t, changed)
			assert.Equal(t, before, r)
		})
	}
}

func TestStealCoversCall(t *testing.T) {
	r := underfundedRoom(t)
	_, err := Call(r, "A")
	require.NoError(t, err)

	changed, err := Steal(r, "B", []Transfer{{FromRound: 2, Amount: 2}})
	require.NoError(t, err)
	assert.False(t, changed, "only the turn owner may steal")

	changed, err = Steal(r, "A", []Transfer{{FromRound: 2, Amount: 1}, {FromRound: 10, Amount: 1}})
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 0, r.TeamA.Winnings)
	assert.Equal(t, 5, r.TeamA.Strategy[0].Chips)
	assert.Equal(t, 2, r.TeamA.Strategy[1].Chips)
	assert.Equal(t, 3, r.TeamA.Strategy[9].Chips)
	assert.Nil(t, r.Match.PendingSteal)
	assert.Equal(t, table.StatusShowdown, r.Match.RoundStatus)
	assert.Equal(t, 10, r.Match.Pot)
}

func TestStealWhenCovered(t *testing.T) {
	r := underfundedRoom(t)
	_, err := Call(r, "A")
	require.NoError(t, err)
	r.TeamA.Winnings = 5
	_, err = Steal(r, "A", []Transfer{{FromRound: 2, Amount: 2}})
	assert.ErrorIs(t, err, ErrInvalidSteal)
}

func TestStealNeedsPendingCall(t *testing.T) {
	r := underfundedRoom(t)
	before := r.Clone()

	// no call yet
	changed, err := Steal(r, "A", []Transfer{{FromRound: 2, Amount: 1}, {FromRound: 10, Amount: 1}})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, before, r)

	// a pending steal left over from another round
	_, err = Call(r, "A")
	require.NoError(t, err)
	r.Match.PendingSteal.Round = 2
	before = r.Clone()
	changed, err = Steal(r, "A", []Transfer{{FromRound: 2, Amount: 1}, {FromRound: 10, Amount: 1}})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, before, r)
}

func TestCancelSteal(t *testing.T) {
	r := underfundedRoom(t)
	changed, err := CancelSteal(r, "A")
	require.NoError(t, err)
	assert.False(t, changed, "nothing to cancel")

	_, err = Call(r, "A")
	require.NoError(t, err)
	changed, err = CancelSteal(r, "A")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, r.Match.PendingSteal)
	assert.Equal(t, table.StatusDecision, r.Match.RoundStatus)
	assert.Equal(t, "A", r.Match.TurnOwner)
}

func TestShowdownRejectsTamperedCards(t *testing.T) {
	r := newRoom(t, strat(inOrder, flat), strat(inOrder, flat))
	_, err := Evaluate(r, 1)
	require.NoError(t, err)
	r.TeamA.Strategy[0].Card, r.TeamA.Strategy[1].Card = 1, 0

	changed, err := Showdown(r, "A")
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, table.StatusShowdown, r.Match.RoundStatus)
}

func TestAdviceCap(t *testing.T) {
	r := newRoom(t, strat(inOrder, flat), strat(inOrder, flat))
	for i := 0; i < 3; i++ {
		changed, err := UseAdvice(r, "A", 3)
		require.NoError(t, err)
		require.True(t, changed)
	}
	_, err := UseAdvice(r, "A", 3)
	assert.ErrorIs(t, err, ErrAdviceExhausted)
	assert.Equal(t, 3, r.Match.AIHelpCounter["A"])
	assert.Equal(t, 0, r.Match.AIHelpCounter["B"])
	assert.ErrorIs(t, CheckAdvice(r, "Z", 3), ErrAdviceExhausted)
}

func TestAllowedRejectsCorruptStatus(t *testing.T) {
	r := newRoom(t, strat(inOrder, flat), strat(inOrder, flat))
	r.Match.RoundStatus = "WAITING"
	_, err := Allowed(r, "A")
	assert.ErrorIs(t, err, ErrCorruptRoom)
}

// greedySteal takes from the latest rounds first, never below the floor.
func greedySteal(r *table.Room, teamID string, needed int) []Transfer {
	t := r.TeamByID(teamID)
	var out []Transfer
	for round := table.Rounds; round > r.Match.CurrentRound && needed > 0; round-- {
		spare := t.Strategy.At(round).Chips - table.MinChips
		if spare <= 0 {
			continue
		}
		take := min(spare, needed)
		out = append(out, Transfer{FromRound: round, Amount: take})
		needed -= take
	}
	if needed > 0 {
		return nil
	}
	return out
}

func checkResolution(t *testing.T, pre, post *table.Room) {
	t.Helper()
	res := post.Match.LastRoundResult
	require.NotNil(t, res)
	pot := res.TeamAChips + res.TeamBChips + pre.Match.CarryOver
	dA := post.TeamA.Winnings - pre.TeamA.Winnings
	dB := post.TeamB.Winnings - pre.TeamB.Winnings

	switch res.Result {
	case table.OutcomeAWon, table.OutcomeBFolded:
		assert.Equal(t, pot, res.PotWon)
		assert.Equal(t, res.PotWon, dA)
		assert.Zero(t, dB)
		assert.Zero(t, post.Match.CarryOver)
	case table.OutcomeBWon, table.OutcomeAFolded:
		assert.Equal(t, pot, res.PotWon)
		assert.Equal(t, res.PotWon, dB)
		assert.Zero(t, dA)
		assert.Zero(t, post.Match.CarryOver)
	case table.OutcomeDraw:
		assert.Zero(t, res.PotWon)
		assert.Equal(t, res.TeamACard, res.TeamBCard)
		if res.Round == table.Rounds {
			assert.Equal(t, pot, dA+dB)
			assert.Zero(t, post.Match.CarryOver)
		} else {
			assert.Zero(t, dA+dB)
			assert.Equal(t, pot, post.Match.CarryOver)
		}
	default:
		t.Fatalf("unexpected outcome %q", res.Result)
	}

	if res.Result == table.OutcomeAWon {
		assert.Greater(t, res.TeamACard, res.TeamBCard)
	}
	if res.Result == table.OutcomeBWon {
		assert.Greater(t, res.TeamBCard, res.TeamACard)
	}
}

// Plays many random matches to completion checking pot conservation, the
// steal floor and round monotonicity.
func TestRandomMatchesKeepInvariants(t *testing.T) {
	for seed := int64(1); seed <= 60; seed++ {
		d := dealer.NewDealer(seed)
		rng := rand.New(rand.NewSource(seed))
		r := newRoom(t, d.RandomStrategy(), d.RandomStrategy())
		r.TeamA.Winnings = rng.Intn(4)
		r.TeamB.Winnings = rng.Intn(4)

		last := r.Match.CurrentRound
		for steps := 0; !r.Finished(); steps++ {
			require.Less(t, steps, 200, "seed %d did not finish", seed)
			round := r.Match.CurrentRound
			require.True(t, round == last || round == last+1, "seed %d jumped from %d to %d", seed, last, round)
			last = round

			_, err := Evaluate(r, round)
			require.NoError(t, err)

			if r.Match.RoundStatus == table.StatusDecision {
				owner := r.Match.TurnOwner
				pre := r.Clone()
				if rng.Intn(4) == 0 {
					_, err = Fold(r, owner)
					require.NoError(t, err)
					checkResolution(t, pre, r)
				} else {
					_, err = Call(r, owner)
					require.NoError(t, err)
					if ps := r.Match.PendingSteal; ps != nil {
						if transfers := greedySteal(r, owner, ps.Needed); transfers != nil {
							_, err = Steal(r, owner, transfers)
							require.NoError(t, err)
						} else {
							_, err = CancelSteal(r, owner)
							require.NoError(t, err)
							pre = r.Clone()
							_, err = Fold(r, owner)
							require.NoError(t, err)
							checkResolution(t, pre, r)
						}
					}
				}
				for _, team := range []*table.Team{&r.TeamA, &r.TeamB} {
					for _, rs := range team.Strategy {
						require.GreaterOrEqual(t, rs.Chips, table.MinChips)
					}
					require.GreaterOrEqual(t, team.Winnings, 0)
				}
			}

			if r.Match.RoundStatus == table.StatusShowdown {
				pre := r.Clone()
				_, err = Showdown(r, "A")
				require.NoError(t, err)
				checkResolution(t, pre, r)
			}

			require.Equal(t, table.StatusResult, r.Match.RoundStatus)
			_, advanced := Confirm(r, "B")
			require.False(t, advanced)
			_, advanced = Confirm(r, "A")
			require.True(t, advanced)
		}
		assert.Len(t, r.Match.History, table.Rounds)
		assert.Zero(t, r.Match.CarryOver)
	}
}
