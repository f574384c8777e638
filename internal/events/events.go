// Package events streams every saved room version to subscribers outside the
// server. Envelopes carry the observer view of the room, so an unresolved
// card never leaves the process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ChipClash/internal/game/table"
	"ChipClash/internal/utils"
)

// Publisher emits one envelope per saved room version. A failed publish does
// not undo the save.
type Publisher interface {
	Publish(ctx context.Context, room *table.Room) error
	Close() error
}

type Envelope struct {
	EventID   string            `json:"eventId"`
	EventType table.ActionKind  `json:"eventType"`
	RoomID    string            `json:"roomId"`
	Version   int64             `json:"version"`
	Round     int               `json:"round"`
	Status    table.RoundStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Room      *table.Room       `json:"room"`
}

// Kind names the change that produced this room version.
func Kind(room *table.Room) table.ActionKind {
	if room.Match.LastAction == nil {
		return table.ActionCreate
	}
	return room.Match.LastAction.Kind
}

// MessageID is stable per room version so a redelivered publish is dropped
// by the stream's duplicate window.
func MessageID(room *table.Room) string {
	return fmt.Sprintf("%s-%d", room.ID, room.Version)
}

func Subject(prefix string, kind table.ActionKind) string {
	return fmt.Sprintf("%s.room.%s", prefix, kind)
}

func NewEnvelope(room *table.Room) Envelope {
	return Envelope{
		EventID:   MessageID(room),
		EventType: Kind(room),
		RoomID:    room.ID,
		Version:   room.Version,
		Round:     room.Match.CurrentRound,
		Status:    room.Match.RoundStatus,
		Timestamp: time.Now().UTC(),
		Room:      room.ViewFor(""),
	}
}

// Nop drops events. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, room *table.Room) error { return nil }
func (Nop) Close() error                                        { return nil }

// LogPublisher writes envelopes to the log. It is handy when running the
// server without a broker.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, room *table.Room) error {
	env := NewEnvelope(room)
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	utils.Named("events").Debug("room event", "subject", Subject("log", env.EventType), "bytes", len(data), "id", env.EventID)
	return nil
}

func (LogPublisher) Close() error { return nil }
