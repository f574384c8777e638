package table

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	Rounds     = 10
	TotalChips = 30
	MinChips   = 1
	MaxCard    = 9
	NoCard     = -1
)

// RoundStatus is the phase of the round currently being played.
type RoundStatus string

const (
	// StatusReady waits for the round's chip comparison.
	StatusReady RoundStatus = "READY"
	// StatusDecision waits for the turn owner to fold or call.
	StatusDecision RoundStatus = "DECISION"
	// StatusShowdown waits for either team to reveal the cards.
	StatusShowdown RoundStatus = "SHOWDOWN"
	// StatusResult waits for both teams to confirm the round result.
	StatusResult RoundStatus = "RESULT"
	// StatusFinished is terminal; the room is read-only history.
	StatusFinished RoundStatus = "FINISHED"
)

func (s RoundStatus) Valid() bool {
	switch s {
	case StatusReady, StatusDecision, StatusShowdown, StatusResult, StatusFinished:
		return true
	}
	return false
}

// Outcome is how a round was decided.
type Outcome string

const (
	OutcomeAWon    Outcome = "A_WON"
	OutcomeBWon    Outcome = "B_WON"
	OutcomeDraw    Outcome = "DRAW"
	OutcomeAFolded Outcome = "A_FOLDED"
	OutcomeBFolded Outcome = "B_FOLDED"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAWon, OutcomeBWon, OutcomeDraw, OutcomeAFolded, OutcomeBFolded:
		return true
	}
	return false
}

// Side is the slot a team occupies in its match.
type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

func (s Side) Other() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return SideNone
}

// Won returns the outcome of this side winning a showdown.
func (s Side) Won() Outcome {
	if s == SideA {
		return OutcomeAWon
	}
	return OutcomeBWon
}

// Folded returns the outcome of this side folding.
func (s Side) Folded() Outcome {
	if s == SideA {
		return OutcomeAFolded
	}
	return OutcomeBFolded
}

type ActionKind string

const (
	ActionSubmit      ActionKind = "submit"
	ActionOverride    ActionKind = "override"
	ActionFold        ActionKind = "fold"
	ActionCall        ActionKind = "call"
	ActionSteal       ActionKind = "steal"
	ActionCancelSteal ActionKind = "cancel_steal"
	ActionShowdown    ActionKind = "showdown"
	ActionConfirm     ActionKind = "confirm"
	ActionAdvance     ActionKind = "advance"
	ActionEvaluate    ActionKind = "evaluate"
	ActionAdvice      ActionKind = "advice"
	ActionAutofill    ActionKind = "autofill"
	ActionSummary     ActionKind = "summary"
	ActionPoster      ActionKind = "poster"
	ActionCreate      ActionKind = "create"
)

type LastAction struct {
	TeamID string     `json:"teamId,omitempty"`
	Kind   ActionKind `json:"kind"`
	At     time.Time  `json:"at"`
}

// PendingSteal is an underfunded call waiting to be covered by future chips.
type PendingSteal struct {
	TeamID string `json:"teamId"`
	Round  int    `json:"round"`
	Diff   int    `json:"diff"`
	Needed int    `json:"needed"`
}

type RoundResult struct {
	Round      int     `json:"round"`
	TeamACard  int     `json:"teamACard"`
	TeamBCard  int     `json:"teamBCard"`
	TeamAChips int     `json:"teamAChips"`
	TeamBChips int     `json:"teamBChips"`
	Result     Outcome `json:"result"`
	PotWon     int     `json:"potWon"`
}

func (r RoundResult) String() string {
	return fmt.Sprintf("R%d %s (%d/%d vs %d/%d) pot=%d",
		r.Round, r.Result, r.TeamACard, r.TeamAChips, r.TeamBCard, r.TeamBChips, r.PotWon)
}

type Match struct {
	ID              string          `json:"id"`
	TeamAID         string          `json:"teamAId"`
	TeamBID         string          `json:"teamBId"`
	TeamAScore      int             `json:"teamAScore"`
	TeamBScore      int             `json:"teamBScore"`
	CurrentRound    int             `json:"currentRound"`
	RoundStatus     RoundStatus     `json:"roundStatus"`
	TurnOwner       string          `json:"turnOwner,omitempty"`
	Pot             int             `json:"pot"`
	CarryOver       int             `json:"carryOver"`
	History         []RoundResult   `json:"history"`
	AIHelpCounter   map[string]int  `json:"aiHelpCounter"`
	LastRoundResult *RoundResult    `json:"lastRoundResult,omitempty"`
	ResultConfirmed map[string]bool `json:"resultConfirmed"`
	LastAction      *LastAction     `json:"lastAction,omitempty"`
	PendingSteal    *PendingSteal   `json:"pendingSteal,omitempty"`
}

// Room is the aggregate persisted by the shared store: one match and its two
// teams. Version is bumped by every successful save.
type Room struct {
	ID              string    `json:"id"`
	Pool            string    `json:"pool"`
	Match           Match     `json:"match"`
	TeamA           Team      `json:"teamA"`
	TeamB           Team      `json:"teamB"`
	Feedback        string    `json:"feedback,omitempty"`
	WinnerPosterURL string    `json:"winnerPosterUrl,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewRoom schedules a match between two teams. Both start unlocked with an
// empty strategy.
func NewRoom(pool string, a, b Team, startingWinnings int) *Room {
	now := time.Now().UTC()
	a.Winnings, b.Winnings = startingWinnings, startingWinnings
	a.IsReady, b.IsReady = false, false
	a.Strategy, b.Strategy = EmptyStrategy(), EmptyStrategy()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return &Room{
		ID:   uuid.NewString(),
		Pool: pool,
		Match: Match{
			ID:              uuid.NewString(),
			TeamAID:         a.ID,
			TeamBID:         b.ID,
			CurrentRound:    1,
			RoundStatus:     StatusReady,
			History:         []RoundResult{},
			AIHelpCounter:   map[string]int{a.ID: 0, b.ID: 0},
			ResultConfirmed: map[string]bool{},
		},
		TeamA:     a,
		TeamB:     b,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SideOf reports which slot the team occupies, or SideNone.
func (r *Room) SideOf(teamID string) Side {
	switch teamID {
	case "":
		return SideNone
	case r.TeamA.ID:
		return SideA
	case r.TeamB.ID:
		return SideB
	}
	return SideNone
}

func (r *Room) Team(s Side) *Team {
	switch s {
	case SideA:
		return &r.TeamA
	case SideB:
		return &r.TeamB
	}
	return nil
}

func (r *Room) TeamByID(id string) *Team {
	return r.Team(r.SideOf(id))
}

func (r *Room) Opponent(teamID string) *Team {
	return r.Team(r.SideOf(teamID).Other())
}

func (r *Room) BothReady() bool {
	return r.TeamA.IsReady && r.TeamB.IsReady
}

func (r *Room) Finished() bool {
	return r.Match.RoundStatus == StatusFinished
}

// Clone deep-copies the room so a failed action never leaks into the caller's
// copy.
func (r *Room) Clone() *Room {
	c := *r
	c.TeamA = r.TeamA.clone()
	c.TeamB = r.TeamB.clone()
	m := &c.Match
	m.History = append([]RoundResult{}, r.Match.History...)
	m.AIHelpCounter = make(map[string]int, len(r.Match.AIHelpCounter))
	for k, v := range r.Match.AIHelpCounter {
		m.AIHelpCounter[k] = v
	}
	m.ResultConfirmed = make(map[string]bool, len(r.Match.ResultConfirmed))
	for k, v := range r.Match.ResultConfirmed {
		m.ResultConfirmed[k] = v
	}
	if r.Match.LastRoundResult != nil {
		lr := *r.Match.LastRoundResult
		m.LastRoundResult = &lr
	}
	if r.Match.LastAction != nil {
		la := *r.Match.LastAction
		m.LastAction = &la
	}
	if r.Match.PendingSteal != nil {
		ps := *r.Match.PendingSteal
		m.PendingSteal = &ps
	}
	return &c
}
