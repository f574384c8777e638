package strategy

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ChipClash/internal/game/table"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidStrategy    = errors.New("invalid strategy")
	ErrCommitmentMismatch = errors.New("strategy does not match its commitment")
)

// Validate checks a ten-round allocation: every card 0..9 used exactly once,
// TotalChips spent in full and no round below MinChips.
func Validate(s table.Strategy) error {
	var seen [table.MaxCard + 1]bool
	for i, rs := range s {
		if rs.Round != i+1 {
			return fmt.Errorf("%w: entry %d is round %d", ErrInvalidStrategy, i+1, rs.Round)
		}
		if rs.Card < 0 || rs.Card > table.MaxCard {
			return fmt.Errorf("%w: round %d has no card", ErrInvalidStrategy, rs.Round)
		}
		if seen[rs.Card] {
			return fmt.Errorf("%w: card %d used twice", ErrInvalidStrategy, rs.Card)
		}
		seen[rs.Card] = true
		if rs.Chips < table.MinChips {
			return fmt.Errorf("%w: round %d has %d chips, need at least %d",
				ErrInvalidStrategy, rs.Round, rs.Chips, table.MinChips)
		}
	}
	if total := s.TotalChips(); total != table.TotalChips {
		return fmt.Errorf("%w: %d chips allocated, want %d (remaining %d)",
			ErrInvalidStrategy, total, table.TotalChips, table.TotalChips-total)
	}
	return nil
}

// Commitment hashes the team's card order with its secret salt. It is
// published when the strategy locks so the opponent can check afterwards that
// the cards were never swapped.
func Commitment(teamID, salt string, cards [table.Rounds]int) string {
	parts := make([]string, 0, table.Rounds)
	for _, c := range cards {
		parts = append(parts, strconv.Itoa(c))
	}
	msg := teamID + "|" + salt + "|" + strings.Join(parts, ",")
	return crypto.Keccak256Hash([]byte(msg)).Hex()
}

// Seal locks the team's card order behind a fresh commitment.
func Seal(t *table.Team) error {
	salt, err := newSalt()
	if err != nil {
		return fmt.Errorf("seal strategy: %w", err)
	}
	t.Salt = salt
	t.Commitment = Commitment(t.ID, salt, t.Strategy.Cards())
	return nil
}

func newSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// VerifyCommitment recomputes the commitment of a locked team. Teams locked
// without one (administrative override of older records) pass.
func VerifyCommitment(t *table.Team) error {
	if t.Commitment == "" {
		return nil
	}
	if Commitment(t.ID, t.Salt, t.Strategy.Cards()) != t.Commitment {
		return fmt.Errorf("%w: team %s", ErrCommitmentMismatch, t.ID)
	}
	return nil
}
