package rules

import "ChipClash/internal/game/table"

// Confirm acknowledges the resolved round for one team. The round only
// advances once both teams have confirmed; repeated confirms change nothing.
func Confirm(r *table.Room, teamID string) (changed, advanced bool) {
	m := &r.Match
	if m.RoundStatus != table.StatusResult || r.SideOf(teamID) == table.SideNone {
		return false, false
	}
	if m.ResultConfirmed[teamID] {
		return false, false
	}
	if m.ResultConfirmed == nil {
		m.ResultConfirmed = map[string]bool{}
	}
	m.ResultConfirmed[teamID] = true
	record(r, teamID, table.ActionConfirm)

	if !m.ResultConfirmed[r.TeamA.ID] || !m.ResultConfirmed[r.TeamB.ID] {
		return true, false
	}
	advance(r)
	record(r, teamID, table.ActionAdvance)
	return true, true
}
