package dealer

import (
	"math/rand"

	"ChipClash/internal/game/table"
)

// Dealer draws random but valid strategies. It backs the demo autofill and
// the simulation tests.
type Dealer struct {
	rnd *rand.Rand
}

func NewDealer(seed int64) *Dealer {
	return &Dealer{rnd: rand.New(rand.NewSource(seed))}
}

// RandomStrategy shuffles the ten cards across the rounds and spreads the
// chip budget with at least MinChips on every round.
func (d *Dealer) RandomStrategy() table.Strategy {
	cards := d.shuffledCards()
	var s table.Strategy
	for i := range s {
		s[i] = table.RoundStrategy{Round: i + 1, Card: cards[i], Chips: table.MinChips}
	}
	for left := table.TotalChips - table.Rounds*table.MinChips; left > 0; left-- {
		s[d.rnd.Intn(table.Rounds)].Chips++
	}
	return s
}

func (d *Dealer) shuffledCards() []int {
	cards := make([]int, 0, table.MaxCard+1)
	for c := 0; c <= table.MaxCard; c++ {
		cards = append(cards, c)
	}
	d.rnd.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	return cards
}
