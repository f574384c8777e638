package advisor

import (
	"context"
	"fmt"
	"strings"

	"ChipClash/internal/game/table"
)

// Static answers without a network. It keeps the game playable when no API
// key is configured.
type Static struct {
	PosterURL string
}

func (Static) Summarize(ctx context.Context, r *table.Room) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Overview\n%s %d : %d %s\n\nRounds\n", r.TeamA.Name, r.Match.TeamAScore, r.Match.TeamBScore, r.TeamB.Name)
	for _, h := range r.Match.History {
		b.WriteString(h.String())
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (Static) Advise(ctx context.Context, team, opponent table.Team, m table.Match) (string, error) {
	cur := team.Strategy.At(m.CurrentRound)
	if cur == nil {
		return "", fmt.Errorf("%w: round %d", ErrNoContent, m.CurrentRound)
	}
	switch {
	case m.PendingSteal != nil && m.PendingSteal.TeamID == team.ID && cur.Card >= 7:
		return "Steal: your card is strong enough to borrow from later rounds.", nil
	case m.PendingSteal != nil && m.PendingSteal.TeamID == team.ID:
		return "Fold: covering this call would drain rounds you may need later.", nil
	case cur.Card >= 5:
		return "Call: your card beats at least half the deck.", nil
	default:
		return "Fold: a low card rarely justifies matching the bet.", nil
	}
}

func (s Static) RenderPoster(ctx context.Context, team table.Team, images, names []string) (string, error) {
	if s.PosterURL != "" {
		return s.PosterURL, nil
	}
	if len(images) > 0 {
		return images[0], nil
	}
	return "", ErrNoContent
}
