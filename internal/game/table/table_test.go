package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockedRoom(t *testing.T) *Room {
	t.Helper()
	r := NewRoom("class-1", Team{ID: "A", Name: "Owls"}, Team{ID: "B", Name: "Foxes"}, 0)
	for i := 0; i < Rounds; i++ {
		r.TeamA.Strategy[i] = RoundStrategy{Round: i + 1, Card: i, Chips: 3}
		r.TeamB.Strategy[i] = RoundStrategy{Round: i + 1, Card: 9 - i, Chips: 3}
	}
	r.TeamA.IsReady, r.TeamB.IsReady = true, true
	r.TeamA.Salt, r.TeamB.Salt = "salt-a", "salt-b"
	return r
}

func TestNewRoomDefaults(t *testing.T) {
	r := NewRoom("p", Team{Name: "x"}, Team{Name: "y"}, 5)

	require.NotEmpty(t, r.TeamA.ID)
	require.NotEmpty(t, r.TeamB.ID)
	assert.NotEqual(t, r.TeamA.ID, r.TeamB.ID)
	assert.Equal(t, 1, r.Match.CurrentRound)
	assert.Equal(t, StatusReady, r.Match.RoundStatus)
	assert.Equal(t, 5, r.TeamA.Winnings)
	assert.Equal(t, 5, r.TeamB.Winnings)
	assert.Equal(t, NoCard, r.TeamA.Strategy[0].Card)
	assert.Equal(t, Rounds, r.TeamA.Strategy.TotalChips())
	assert.Equal(t, SideA, r.SideOf(r.TeamA.ID))
	assert.Equal(t, SideB, r.SideOf(r.TeamB.ID))
	assert.Equal(t, SideNone, r.SideOf("nobody"))
}

func TestCloneIsDeep(t *testing.T) {
	r := lockedRoom(t)
	r.Match.ResultConfirmed["A"] = true
	r.Match.LastRoundResult = &RoundResult{Round: 1}
	r.TeamA.Members = []string{"ann"}

	c := r.Clone()
	c.TeamA.Strategy[0].Chips = 99
	c.Match.ResultConfirmed["B"] = true
	c.Match.LastRoundResult.Round = 7
	c.Match.History = append(c.Match.History, RoundResult{Round: 1})
	c.TeamA.Members[0] = "bob"

	assert.Equal(t, 3, r.TeamA.Strategy[0].Chips)
	assert.False(t, r.Match.ResultConfirmed["B"])
	assert.Equal(t, 1, r.Match.LastRoundResult.Round)
	assert.Empty(t, r.Match.History)
	assert.Equal(t, "ann", r.TeamA.Members[0])
}

func TestViewForHidesOpponent(t *testing.T) {
	r := lockedRoom(t)
	r.Match.CurrentRound = 2
	r.Match.History = []RoundResult{{Round: 1, TeamACard: 0, TeamBCard: 9, Result: OutcomeBWon}}

	v := r.ViewFor("A")

	assert.Equal(t, 1, v.TeamA.Strategy[1].Card, "own cards stay visible")
	assert.Equal(t, 9, v.TeamB.Strategy[0].Card, "shown-down round is public")
	assert.Equal(t, NoCard, v.TeamB.Strategy[1].Card)
	assert.Equal(t, 3, v.TeamB.Strategy[1].Chips, "current round chips are public")
	assert.Equal(t, 0, v.TeamB.Strategy[2].Chips)
	assert.Empty(t, v.TeamA.Salt)
	assert.Empty(t, v.TeamB.Salt)

	// source untouched
	assert.Equal(t, 8, r.TeamB.Strategy[1].Card)
	assert.Equal(t, "salt-b", r.TeamB.Salt)
}

func TestViewForFoldedRoundKeepsOpponentCardHidden(t *testing.T) {
	r := lockedRoom(t)
	r.Match.CurrentRound = 1
	res := RoundResult{Round: 1, TeamACard: 0, TeamBCard: 9, Result: OutcomeAFolded, PotWon: 6}
	r.Match.History = []RoundResult{res}
	r.Match.LastRoundResult = &res
	r.Match.RoundStatus = StatusResult

	v := r.ViewFor("B")
	assert.Equal(t, NoCard, v.Match.History[0].TeamACard)
	assert.Equal(t, 9, v.Match.History[0].TeamBCard)
	assert.Equal(t, NoCard, v.Match.LastRoundResult.TeamACard)
	assert.Equal(t, NoCard, v.TeamA.Strategy[0].Card)
}

func TestViewForObserverAndFinished(t *testing.T) {
	r := lockedRoom(t)
	v := r.ViewFor("")
	assert.Equal(t, NoCard, v.TeamA.Strategy[0].Card)
	assert.Equal(t, NoCard, v.TeamB.Strategy[0].Card)

	r.Match.RoundStatus = StatusFinished
	v = r.ViewFor("A")
	assert.Equal(t, "salt-b", v.TeamB.Salt)
	assert.Equal(t, 8, v.TeamB.Strategy[1].Card)
}

func TestEnumsAreClosed(t *testing.T) {
	assert.True(t, StatusDecision.Valid())
	assert.False(t, RoundStatus("WAITING").Valid())
	assert.True(t, OutcomeBFolded.Valid())
	assert.False(t, Outcome("BOTH_WON").Valid())
	assert.Equal(t, SideB, SideA.Other())
	assert.Equal(t, OutcomeBWon, SideB.Won())
	assert.Equal(t, OutcomeAFolded, SideA.Folded())
}
