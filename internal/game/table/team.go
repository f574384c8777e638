package table

import "fmt"

// RoundStrategy is one team's card and chip bet for a round.
type RoundStrategy struct {
	Round int `json:"round"`
	Card  int `json:"card"`
	Chips int `json:"chips"`
}

// Strategy is the ordered allocation for all ten rounds.
type Strategy [Rounds]RoundStrategy

// EmptyStrategy returns the editable starting point: no cards placed and the
// minimum chip on every round.
func EmptyStrategy() Strategy {
	var s Strategy
	for i := range s {
		s[i] = RoundStrategy{Round: i + 1, Card: NoCard, Chips: MinChips}
	}
	return s
}

// At returns the entry for a 1-based round.
func (s *Strategy) At(round int) *RoundStrategy {
	if round < 1 || round > Rounds {
		return nil
	}
	return &s[round-1]
}

func (s Strategy) Cards() [Rounds]int {
	var out [Rounds]int
	for i, rs := range s {
		out[i] = rs.Card
	}
	return out
}

func (s Strategy) TotalChips() int {
	n := 0
	for _, rs := range s {
		n += rs.Chips
	}
	return n
}

type Team struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	IsReady  bool     `json:"isReady"`
	Winnings int      `json:"winnings"`
	Members  []string `json:"members"`
	Strategy Strategy `json:"strategy"`

	// Commitment is published when the strategy locks; Salt stays hidden
	// from the opponent until the match finishes.
	Commitment string `json:"commitment,omitempty"`
	Salt       string `json:"salt,omitempty"`
}

func (t Team) clone() Team {
	t.Members = append([]string(nil), t.Members...)
	return t
}

// StrategyFrom builds a Strategy from client entries. Entries may omit the
// round number; it is taken from the position.
func StrategyFrom(entries []RoundStrategy) (Strategy, error) {
	var s Strategy
	if len(entries) != Rounds {
		return s, fmt.Errorf("strategy has %d rounds, want %d", len(entries), Rounds)
	}
	for i, e := range entries {
		if e.Round == 0 {
			e.Round = i + 1
		}
		s[i] = e
	}
	return s, nil
}
