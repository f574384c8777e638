package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ChipClash/internal/game/engine"
	"ChipClash/internal/game/rules"
	"ChipClash/internal/game/table"
	"ChipClash/internal/storage"
	"ChipClash/internal/utils"
	"ChipClash/internal/websocket"

	"github.com/charmbracelet/log"
)

var (
	ErrRoomRunning = errors.New("room already running")
	ErrBadPayload  = errors.New("bad payload")
)

// teamEvents 队伍可以直接发起的操作（socket 事件名与 HTTP 路径共用）
var teamEvents = map[string]table.ActionKind{
	"submit":       table.ActionSubmit,
	"fold":         table.ActionFold,
	"call":         table.ActionCall,
	"steal":        table.ActionSteal,
	"cancel_steal": table.ActionCancelSteal,
	"showdown":     table.ActionShowdown,
	"confirm":      table.ActionConfirm,
	"advice":       table.ActionAdvice,
	"summary":      table.ActionSummary,
	"poster":       table.ActionPoster,
}

// adminEvents are issued by an operator on behalf of a team.
var adminEvents = map[string]table.ActionKind{
	"override": table.ActionOverride,
	"autofill": table.ActionAutofill,
}

// payload is the body shared by socket messages and HTTP requests.
type payload struct {
	Strategy  []table.RoundStrategy `json:"strategy,omitempty"`
	Transfers []rules.Transfer      `json:"transfers,omitempty"`
	Images    []string              `json:"images,omitempty"`
	Names     []string              `json:"names,omitempty"`
}

// decodeIntent turns an event name and its raw body into an engine intent.
func decodeIntent(kind table.ActionKind, data json.RawMessage) (engine.Intent, error) {
	in := engine.Intent{Kind: kind}
	var p payload
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &p); err != nil {
			return in, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	switch kind {
	case table.ActionSubmit, table.ActionOverride:
		s, err := table.StrategyFrom(p.Strategy)
		if err != nil {
			return in, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		in.Strategy = s
	case table.ActionSteal:
		if len(p.Transfers) == 0 {
			return in, fmt.Errorf("%w: steal needs at least one transfer", ErrBadPayload)
		}
		in.Transfers = p.Transfers
	case table.ActionPoster:
		in.Images, in.Names = p.Images, p.Names
	}
	return in, nil
}

// GameManager 管理所有对局
type GameManager struct {
	mu      sync.RWMutex
	engines map[string]*engine.Engine // roomID → engine
	store   storage.RoomStore
	hub     websocket.HubInterface
	opts    engine.Options
	unwatch func()
	log     *log.Logger
}

func NewGameManager(store storage.RoomStore, hub websocket.HubInterface, opts engine.Options) *GameManager {
	return &GameManager{
		engines: make(map[string]*engine.Engine),
		store:   store,
		hub:     hub,
		opts:    opts,
		log:     utils.Named("manager"),
	}
}

// StartRoom 为已存在的房间启动 engine
func (m *GameManager) StartRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.engines[roomID]; ok {
		return fmt.Errorf("%w: %s", ErrRoomRunning, roomID)
	}
	eng := engine.NewEngine(roomID, m.store, m.hub, m.opts)
	if err := eng.Start(ctx); err != nil {
		return err
	}
	m.engines[roomID] = eng
	m.log.Info("engine started", "room", roomID)
	return nil
}

// OnRoomReady is the matchmaker callback.
func (m *GameManager) OnRoomReady(room *table.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.StartRoom(ctx, room.ID); err != nil && !errors.Is(err, ErrRoomRunning) {
		m.log.Error("start room", "room", room.ID, "err", err)
	}
}

func (m *GameManager) Engine(roomID string) (*engine.Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eng, ok := m.engines[roomID]
	return eng, ok
}

// engineFor returns the running engine, starting one for a room that exists
// in the store but not in this process yet.
func (m *GameManager) engineFor(ctx context.Context, roomID string) (*engine.Engine, error) {
	if eng, ok := m.Engine(roomID); ok {
		return eng, nil
	}
	if err := m.StartRoom(ctx, roomID); err != nil && !errors.Is(err, ErrRoomRunning) {
		return nil, err
	}
	eng, ok := m.Engine(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrRoomNotFound, roomID)
	}
	return eng, nil
}

// Resume starts an engine for every unfinished room in the store.
func (m *GameManager) Resume(ctx context.Context) (int, error) {
	rooms, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rooms {
		if r.Finished() {
			continue
		}
		if err := m.StartRoom(ctx, r.ID); err != nil {
			if errors.Is(err, ErrRoomRunning) {
				continue
			}
			return n, err
		}
		n++
	}
	m.log.Info("resumed rooms", "count", n, "total", len(rooms))
	return n, nil
}

// Watch feeds store updates from other processes into the local engines.
func (m *GameManager) Watch(ctx context.Context) error {
	unsub, err := m.store.Subscribe(ctx, m.observe)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.unwatch = unsub
	m.mu.Unlock()
	return nil
}

func (m *GameManager) observe(room *table.Room) {
	if eng, ok := m.Engine(room.ID); ok {
		eng.Observe(room)
		return
	}
	if room.Finished() {
		return
	}
	// 其他进程创建的房间：在本进程也启动 engine
	go m.OnRoomReady(room)
}

// Do routes an intent to the room's engine.
func (m *GameManager) Do(ctx context.Context, roomID, teamID string, in engine.Intent) (engine.Result, error) {
	eng, err := m.engineFor(ctx, roomID)
	if err != nil {
		return engine.Result{}, err
	}
	return eng.Do(ctx, teamID, in)
}

// View returns the room as teamID may see it, together with what it may do.
func (m *GameManager) View(ctx context.Context, roomID, teamID string) (*table.Room, []table.ActionKind, error) {
	eng, err := m.engineFor(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	snap := eng.Snapshot()
	allowed, err := rules.Allowed(snap, teamID)
	if err != nil {
		return nil, nil, err
	}
	return snap.ViewFor(teamID), allowed, nil
}

func (m *GameManager) Rooms(ctx context.Context) ([]*table.Room, error) {
	rooms, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*table.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.ViewFor(""))
	}
	return out, nil
}

// HandleTeamMessage 统一入口（来自 Hub.Incoming）
func (m *GameManager) HandleTeamMessage(msg websocket.IncomingMessage) {
	if msg.From == "" || msg.Room == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch msg.Event {
	case "chat":
		// 桌内聊天广播
		eng, err := m.engineFor(ctx, msg.Room)
		if err != nil {
			m.sendError(msg, err)
			return
		}
		snap := eng.Snapshot()
		var text string
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			text = string(msg.Data)
		}
		m.hub.BroadcastToTeams(
			[]string{snap.TeamA.ID, snap.TeamB.ID},
			websocket.OutgoingMessage{
				Event: "chat",
				Data:  map[string]any{"from": msg.From, "text": text},
			},
		)
		return

	case "state":
		view, allowed, err := m.View(ctx, msg.Room, msg.From)
		if err != nil {
			m.sendError(msg, err)
			return
		}
		m.hub.SendToTeam(msg.From, websocket.OutgoingMessage{
			Event: "room_state",
			Data:  map[string]any{"room": view, "allowed": allowed},
		})
		return
	}

	kind, ok := teamEvents[msg.Event]
	if !ok {
		m.sendError(msg, fmt.Errorf("%w: %q", engine.ErrUnknownIntent, msg.Event))
		return
	}
	in, err := decodeIntent(kind, msg.Data)
	if err != nil {
		m.sendError(msg, err)
		return
	}
	res, err := m.Do(ctx, msg.Room, msg.From, in)
	if err != nil {
		m.sendError(msg, err)
		return
	}
	m.hub.SendToTeam(msg.From, websocket.OutgoingMessage{Event: "action_result", Data: res})
}

// sendError 只通知发起方
func (m *GameManager) sendError(msg websocket.IncomingMessage, err error) {
	m.log.Warn("team intent rejected", "room", msg.Room, "team", msg.From, "event", msg.Event, "err", err)
	m.hub.SendToTeam(msg.From, websocket.OutgoingMessage{
		Event: "error",
		Data:  map[string]any{"event": msg.Event, "message": err.Error()},
	})
}

// Close 停止所有 engine 并取消订阅
func (m *GameManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	for id, eng := range m.engines {
		eng.Stop()
		delete(m.engines, id)
	}
}
