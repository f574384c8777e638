package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ChipClash/internal/game/table"
	"ChipClash/internal/utils"

	"github.com/charmbracelet/log"
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

const notifyChannel = "chipclash_rooms"

const schema = `CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	body       TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`

type sqlRooms struct {
	db        *sql.DB
	dialect   Dialect
	listenDSN string
	feed      *feed
	log       *log.Logger
}

// NewSQLRoomStore keeps each room as a JSON document next to its version.
// Subscribers only see writes made through this store.
func NewSQLRoomStore(ctx context.Context, db *sql.DB, d Dialect) (RoomStore, error) {
	s := &sqlRooms{db: db, dialect: d, feed: newFeed(), log: utils.Named("rooms.sql")}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	return s, nil
}

// NewPostgresRoomStore is the SQL store whose subscribers LISTEN for
// NOTIFYs, so they also see writes from other server instances.
func NewPostgresRoomStore(ctx context.Context, db *sql.DB, dsn string) (RoomStore, error) {
	rs, err := NewSQLRoomStore(ctx, db, Postgres)
	if err != nil {
		return nil, err
	}
	s := rs.(*sqlRooms)
	s.listenDSN = dsn
	return s, nil
}

// bind rewrites ? placeholders for Postgres.
func (s *sqlRooms) bind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (s *sqlRooms) Load(ctx context.Context) ([]*table.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*table.Room{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		r, err := decodeRoom([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlRooms) Get(ctx context.Context, id string) (*table.Room, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM rooms WHERE id = ?`), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom([]byte(body))
}

func (s *sqlRooms) Create(ctx context.Context, room *table.Room) error {
	room.Version = 1
	data, err := encodeRoom(room)
	if err != nil {
		return err
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.bind(`SELECT 1 FROM rooms WHERE id = ?`), room.ID).Scan(&one)
		if err == nil {
			return ErrRoomExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.bind(`INSERT INTO rooms (id, version, body, updated_at) VALUES (?, ?, ?, ?)`),
			room.ID, room.Version, string(data), room.UpdatedAt.UnixMilli()); err != nil {
			return err
		}
		return s.notify(ctx, tx, room.ID)
	})
	if err != nil {
		return err
	}
	s.feed.publish(room)
	return nil
}

// Save conditions the UPDATE on the version the caller read.
func (s *sqlRooms) Save(ctx context.Context, room *table.Room) error {
	next := bump(room)
	data, err := encodeRoom(next)
	if err != nil {
		return err
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.bind(`UPDATE rooms SET version = ?, body = ?, updated_at = ? WHERE id = ? AND version = ?`),
			next.Version, string(data), next.UpdatedAt.UnixMilli(), room.ID, room.Version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, s.bind(`SELECT 1 FROM rooms WHERE id = ?`), room.ID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			return ErrVersionConflict
		}
		return s.notify(ctx, tx, room.ID)
	})
	if err != nil {
		return err
	}
	room.Version, room.UpdatedAt = next.Version, next.UpdatedAt
	s.feed.publish(next)
	return nil
}

func (s *sqlRooms) notify(ctx context.Context, tx *sql.Tx, id string) error {
	if s.dialect != Postgres {
		return nil
	}
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id)
	return err
}

func (s *sqlRooms) Subscribe(ctx context.Context, fn func(*table.Room)) (func(), error) {
	if s.dialect == Postgres && s.listenDSN != "" {
		return listenPostgres(ctx, s.listenDSN, s, fn, s.log)
	}
	return s.feed.add(fn), nil
}

// runTx executes fn inside a transaction, rolling back on error.
func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
