// Package advisor talks to the generative service. It only ever receives
// read-only snapshots; whatever it returns is stored verbatim.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ChipClash/internal/game/table"
)

var ErrNoContent = errors.New("advisor returned no content")

type Advisor interface {
	// Summarize writes the post-game analysis for a finished room.
	Summarize(ctx context.Context, room *table.Room) (string, error)
	// Advise gives a short, decisive hint for the round being played. The
	// opponent is already redacted to what the team may see.
	Advise(ctx context.Context, team, opponent table.Team, match table.Match) (string, error)
	// RenderPoster returns an image URL celebrating the winning team.
	RenderPoster(ctx context.Context, team table.Team, images, names []string) (string, error)
}

const summarySystem = `You are a strategy coach reviewing a ten-round card and chip bidding game between two student teams.
Write three short sections titled "Overview", "Turning points" and "Advice". Be concrete and cite rounds.`

const adviseSystem = `You are a strategy coach. Answer with one decisive recommendation (fold, call or steal) and one sentence of reasoning.`

func summaryPrompt(r *table.Room) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Team A: %s (score %d, winnings %d)\n", r.TeamA.Name, r.Match.TeamAScore, r.TeamA.Winnings)
	fmt.Fprintf(&b, "Team B: %s (score %d, winnings %d)\n", r.TeamB.Name, r.Match.TeamBScore, r.TeamB.Winnings)
	writeStrategy(&b, "Team A", r.TeamA.Strategy)
	writeStrategy(&b, "Team B", r.TeamB.Strategy)
	b.WriteString("Rounds:\n")
	for _, h := range r.Match.History {
		b.WriteString(h.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func advicePrompt(team, opponent table.Team, m table.Match) string {
	var b strings.Builder
	cur := team.Strategy.At(m.CurrentRound)
	opp := opponent.Strategy.At(m.CurrentRound)
	fmt.Fprintf(&b, "Round %d of %d, status %s.\n", m.CurrentRound, table.Rounds, m.RoundStatus)
	if cur != nil && opp != nil {
		fmt.Fprintf(&b, "Our card %d with %d chips; opponent bet %d chips.\n", cur.Card, cur.Chips, opp.Chips)
	}
	fmt.Fprintf(&b, "Pot %d, carry-over %d. Our winnings %d.\n", m.Pot, m.CarryOver, team.Winnings)
	if m.PendingSteal != nil && m.PendingSteal.TeamID == team.ID {
		fmt.Fprintf(&b, "We need %d more chips from future rounds to call.\n", m.PendingSteal.Needed)
	}
	writeStrategy(&b, "Our plan", team.Strategy)
	for _, h := range m.History {
		b.WriteString(h.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func posterPrompt(team table.Team, names []string) string {
	if len(names) == 0 {
		names = team.Members
	}
	p := fmt.Sprintf("A triumphant championship poster for the team %q", team.Name)
	if len(names) > 0 {
		p += " featuring " + strings.Join(names, ", ")
	}
	return p + ", playing cards and gold chips, bold typography, celebratory mood."
}

func writeStrategy(b *strings.Builder, label string, s table.Strategy) {
	parts := make([]string, 0, len(s))
	for _, rs := range s {
		if rs.Card == table.NoCard {
			parts = append(parts, fmt.Sprintf("R%d:?/%d", rs.Round, rs.Chips))
			continue
		}
		parts = append(parts, fmt.Sprintf("R%d:%d/%d", rs.Round, rs.Card, rs.Chips))
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(parts, " "))
}
