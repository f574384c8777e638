package storage

import (
	"context"
	"time"

	"ChipClash/internal/game/table"

	"github.com/charmbracelet/log"
	"github.com/lib/pq"
)

// listenPostgres turns NOTIFYs on the rooms channel into full room reads.
// A reconnect delivers a nil notification; nothing is replayed, the next
// change of each room brings subscribers up to date.
func listenPostgres(ctx context.Context, dsn string, store RoomStore, fn func(*table.Room), logger *log.Logger) (func(), error) {
	l := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("postgres listener event", "event", ev, "err", err)
		}
	})
	if err := l.Listen(notifyChannel); err != nil {
		_ = l.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer l.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-l.Notify:
				if n == nil {
					continue
				}
				r, err := store.Get(ctx, n.Extra)
				if err != nil {
					logger.Warn("load notified room", "room", n.Extra, "err", err)
					continue
				}
				fn(r)
			case <-time.After(90 * time.Second):
				go func() { _ = l.Ping() }()
			}
		}
	}()
	return cancel, nil
}
