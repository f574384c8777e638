package table

// ViewFor returns the read model a team is allowed to see. The opponent's
// cards stay hidden until their round has been shown down, and the
// opponent's chips are hidden for rounds not yet played. Salts are revealed
// once the match is finished. An unknown teamID yields the observer view,
// which hides both teams.
func (r *Room) ViewFor(teamID string) *Room {
	v := r.Clone()
	if v.Finished() {
		return v
	}
	shown := v.shownRounds()

	hide := func(s Side) {
		t := v.Team(s)
		t.Salt = ""
		for i := range t.Strategy {
			rs := &t.Strategy[i]
			if !shown[rs.Round] {
				rs.Card = NoCard
			}
			if rs.Round > v.Match.CurrentRound {
				rs.Chips = 0
			}
		}
		// folded rounds keep the cards in history; only the owner sees its own
		for i := range v.Match.History {
			h := &v.Match.History[i]
			if shown[h.Round] {
				continue
			}
			if s == SideA {
				h.TeamACard = NoCard
			} else {
				h.TeamBCard = NoCard
			}
		}
		if lr := v.Match.LastRoundResult; lr != nil && !shown[lr.Round] {
			if s == SideA {
				lr.TeamACard = NoCard
			} else {
				lr.TeamBCard = NoCard
			}
		}
	}

	switch own := v.SideOf(teamID); own {
	case SideA, SideB:
		v.Team(own).Salt = ""
		hide(own.Other())
	default:
		hide(SideA)
		hide(SideB)
	}
	return v
}

func (r *Room) shownRounds() map[int]bool {
	out := make(map[int]bool, len(r.Match.History))
	for _, h := range r.Match.History {
		if h.Result == OutcomeAFolded || h.Result == OutcomeBFolded {
			continue
		}
		out[h.Round] = true
	}
	return out
}
