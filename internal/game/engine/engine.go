package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ChipClash/internal/advisor"
	"ChipClash/internal/events"
	"ChipClash/internal/game/dealer"
	"ChipClash/internal/game/rules"
	"ChipClash/internal/game/table"
	"ChipClash/internal/storage"
	"ChipClash/internal/utils"
	"ChipClash/internal/websocket"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
)

var (
	ErrStopped        = errors.New("engine stopped")
	ErrTooManyRetries = errors.New("too many conflicting writes")
	ErrNotFinished    = errors.New("match is not finished")
	ErrNoWinner       = errors.New("match ended in a draw")
	ErrUnknownIntent  = errors.New("unknown intent")
	ErrAdvisor        = errors.New("advisor failed")
)

// ---------------------
//   INTENT DEFINITION
// ---------------------

// Intent is one request from a team (or an admin acting for it).
type Intent struct {
	Kind      table.ActionKind `json:"kind"`
	Strategy  table.Strategy   `json:"strategy,omitempty"`
	Transfers []rules.Transfer `json:"transfers,omitempty"`
	Round     int              `json:"round,omitempty"`
	Images    []string         `json:"images,omitempty"`
	Names     []string         `json:"names,omitempty"`
}

// Result is what the acting team gets back: its own view of the room after
// the intent, whether anything changed, and any side output.
type Result struct {
	View          *table.Room         `json:"room"`
	Changed       bool                `json:"changed"`
	StealRequired *table.PendingSteal `json:"stealRequired,omitempty"`
	Advice        string              `json:"advice,omitempty"`
}

type request struct {
	ctx    context.Context
	teamID string
	intent Intent
	// apply replaces the rule looked up from intent when set
	apply func(*table.Room) (bool, error)
	reply chan reply
}

type reply struct {
	res Result
	err error
}

type Options struct {
	Clock         clockwork.Clock
	EvaluateDelay time.Duration
	MaxRetries    int
	MaxAdvice     int
	Publisher     events.Publisher
	Advisor       advisor.Advisor
	Dealer        *dealer.Dealer
}

// ---------------------
//       ENGINE
// ---------------------

// Engine is the single writer for one room inside this process. Intents are
// applied one at a time; every write is a compare-and-swap against the store
// so writers in other processes are detected and re-applied on top.
type Engine struct {
	roomID string
	store  storage.RoomStore
	hub    websocket.HubInterface
	pub    events.Publisher
	adv    advisor.Advisor
	dealer *dealer.Dealer
	clock  clockwork.Clock

	evalDelay  time.Duration
	maxRetries int
	maxAdvice  int

	actionChan chan request
	quit       chan struct{}
	stopOnce   sync.Once

	mu       sync.RWMutex
	snapshot *table.Room

	log *log.Logger
}

func NewEngine(roomID string, store storage.RoomStore, hub websocket.HubInterface, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Dealer == nil {
		opts.Dealer = dealer.NewDealer(time.Now().UnixNano())
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.MaxAdvice <= 0 {
		opts.MaxAdvice = 3
	}
	return &Engine{
		roomID:     roomID,
		store:      store,
		hub:        hub,
		pub:        opts.Publisher,
		adv:        opts.Advisor,
		dealer:     opts.Dealer,
		clock:      opts.Clock,
		evalDelay:  opts.EvaluateDelay,
		maxRetries: opts.MaxRetries,
		maxAdvice:  opts.MaxAdvice,
		actionChan: make(chan request, 32), // 防止死锁
		quit:       make(chan struct{}),
		log:        utils.Named("engine").With("room", roomID),
	}
}

// Start loads the room, pushes it to both teams and starts the action loop.
func (e *Engine) Start(ctx context.Context) error {
	room, err := e.store.Get(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("load room %s: %w", e.roomID, err)
	}
	e.remember(room)
	e.broadcast(room)
	go e.actionLoop()
	if waiting(room) {
		e.schedule(room.Match.CurrentRound)
	}
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
}

func (e *Engine) RoomID() string { return e.roomID }

// View is the last room version this engine has seen, redacted for teamID.
func (e *Engine) View(teamID string) *table.Room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot == nil {
		return nil
	}
	return e.snapshot.ViewFor(teamID)
}

// Snapshot is the unredacted last known room.
func (e *Engine) Snapshot() *table.Room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot == nil {
		return nil
	}
	return e.snapshot.Clone()
}

// Do runs an intent and waits for its outcome. Advisor intents call out to
// the advisor in the caller's goroutine; only their write goes through the
// action loop, so a slow advisor never holds up the room.
func (e *Engine) Do(ctx context.Context, teamID string, in Intent) (Result, error) {
	select {
	case <-e.quit:
		return Result{}, ErrStopped
	default:
	}
	switch in.Kind {
	case table.ActionAdvice:
		return e.advise(ctx, teamID)
	case table.ActionSummary:
		return e.summarize(ctx, teamID)
	case table.ActionPoster:
		return e.poster(ctx, teamID, in)
	}
	return e.send(ctx, request{teamID: teamID, intent: in})
}

// send hands a request to the action loop and waits for its reply.
func (e *Engine) send(ctx context.Context, req request) (Result, error) {
	req.ctx = ctx
	req.reply = make(chan reply, 1)
	select {
	case e.actionChan <- req:
	case <-e.quit:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.res, rep.err
	case <-e.quit:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Observe integrates a room version written elsewhere. Versions the engine
// already knows are ignored, so feed echoes of its own saves are harmless.
func (e *Engine) Observe(room *table.Room) {
	if room.ID != e.roomID {
		return
	}
	e.mu.Lock()
	if e.snapshot != nil && room.Version <= e.snapshot.Version {
		e.mu.Unlock()
		return
	}
	e.snapshot = room.Clone()
	e.mu.Unlock()

	e.log.Debug("integrated external version", "version", room.Version)
	e.broadcast(room)
	if waiting(room) {
		e.schedule(room.Match.CurrentRound)
	}
}

// 动作循环：串行处理队伍操作
func (e *Engine) actionLoop() {
	for {
		select {
		case req := <-e.actionChan:
			res, err := e.handle(req)
			req.reply <- reply{res: res, err: err}
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) handle(req request) (Result, error) {
	ctx := req.ctx
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	apply := req.apply
	if apply == nil {
		var err error
		if apply, err = e.intentFunc(req.teamID, req.intent); err != nil {
			return Result{}, err
		}
	}
	room, changed, err := e.mutate(ctx, apply)
	if err != nil {
		return Result{}, err
	}
	if changed {
		room = e.announce(ctx, room)
	} else {
		e.log.Debug("intent ignored", "team", req.teamID, "kind", req.intent.Kind, "status", room.Match.RoundStatus)
	}
	res := Result{View: room.ViewFor(req.teamID), Changed: changed}
	if ps := room.Match.PendingSteal; ps != nil && ps.TeamID == req.teamID {
		res.StealRequired = ps
	}
	return res, nil
}

func (e *Engine) intentFunc(teamID string, in Intent) (func(*table.Room) (bool, error), error) {
	switch in.Kind {
	case table.ActionSubmit:
		return func(r *table.Room) (bool, error) { return rules.SubmitStrategy(r, teamID, in.Strategy) }, nil
	case table.ActionOverride:
		return func(r *table.Room) (bool, error) { return rules.Override(r, teamID, in.Strategy) }, nil
	case table.ActionAutofill:
		s := e.dealer.RandomStrategy()
		return func(r *table.Room) (bool, error) { return rules.SubmitStrategy(r, teamID, s) }, nil
	case table.ActionFold:
		return func(r *table.Room) (bool, error) { return rules.Fold(r, teamID) }, nil
	case table.ActionCall:
		return func(r *table.Room) (bool, error) { return rules.Call(r, teamID) }, nil
	case table.ActionSteal:
		return func(r *table.Room) (bool, error) { return rules.Steal(r, teamID, in.Transfers) }, nil
	case table.ActionCancelSteal:
		return func(r *table.Room) (bool, error) { return rules.CancelSteal(r, teamID) }, nil
	case table.ActionShowdown:
		return func(r *table.Room) (bool, error) { return rules.Showdown(r, teamID) }, nil
	case table.ActionConfirm:
		return func(r *table.Room) (bool, error) {
			changed, _ := rules.Confirm(r, teamID)
			return changed, nil
		}, nil
	case table.ActionEvaluate:
		return func(r *table.Room) (bool, error) { return rules.Evaluate(r, in.Round) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Kind)
}

// mutate reads the current version, applies fn to a copy and saves it,
// re-applying on a fresh read when another writer got there first. A no-op
// saves nothing.
func (e *Engine) mutate(ctx context.Context, fn func(*table.Room) (bool, error)) (*table.Room, bool, error) {
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		cur, err := e.store.Get(ctx, e.roomID)
		if err != nil {
			return nil, false, err
		}
		next := cur.Clone()
		changed, err := fn(next)
		if err != nil {
			e.remember(cur)
			return nil, false, err
		}
		if !changed {
			e.remember(cur)
			return cur, false, nil
		}
		err = e.store.Save(ctx, next)
		if errors.Is(err, storage.ErrVersionConflict) {
			e.log.Warn("version conflict, retrying", "version", cur.Version, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		e.remember(next)
		return next, true, nil
	}
	return nil, false, fmt.Errorf("%w: room %s after %d attempts", ErrTooManyRetries, e.roomID, e.maxRetries+1)
}

func (e *Engine) remember(room *table.Room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot == nil || room.Version >= e.snapshot.Version {
		e.snapshot = room.Clone()
	}
}

// announce pushes a saved version to both teams and the event stream. When
// the version leaves a round waiting in READY it is evaluated right away, or
// later on the clock if a delay is configured; the latest version is returned.
func (e *Engine) announce(ctx context.Context, room *table.Room) *table.Room {
	// the version is already saved; finish publishing and evaluating even if
	// the caller has gone away
	ctx = context.WithoutCancel(ctx)
	e.log.Info("room updated", "version", room.Version, "kind", events.Kind(room),
		"round", room.Match.CurrentRound, "status", room.Match.RoundStatus)
	e.broadcast(room)
	if err := e.pub.Publish(ctx, room); err != nil {
		e.log.Error("publish room event", "version", room.Version, "err", err)
	}
	if !waiting(room) {
		return room
	}
	if e.evalDelay > 0 {
		e.schedule(room.Match.CurrentRound)
		return room
	}
	round := room.Match.CurrentRound
	next, changed, err := e.mutate(ctx, func(r *table.Room) (bool, error) { return rules.Evaluate(r, round) })
	if err != nil {
		e.log.Error("evaluate round", "round", round, "err", err)
		return room
	}
	if !changed {
		return next
	}
	return e.announce(ctx, next)
}

func (e *Engine) broadcast(room *table.Room) {
	if e.hub == nil {
		return
	}
	for _, id := range []string{room.TeamA.ID, room.TeamB.ID} {
		e.hub.SendToTeam(id, websocket.OutgoingMessage{Event: "room_state", Data: room.ViewFor(id)})
	}
}

func waiting(room *table.Room) bool {
	return room.Match.RoundStatus == table.StatusReady && room.BothReady()
}

// schedule evaluates the round from outside the action loop.
func (e *Engine) schedule(round int) {
	fire := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.Do(ctx, "", Intent{Kind: table.ActionEvaluate, Round: round}); err != nil && !errors.Is(err, ErrStopped) {
			e.log.Error("evaluate round", "round", round, "err", err)
		}
	}
	if e.evalDelay <= 0 {
		go fire()
		return
	}
	e.clock.AfterFunc(e.evalDelay, fire)
}

// ---------------------
//     ADVISOR INTENTS
// ---------------------

// The advisor calls below read the store directly and run outside the action
// loop. The write that follows re-checks its precondition inside the loop.

func (e *Engine) advise(ctx context.Context, teamID string) (Result, error) {
	if e.adv == nil {
		return Result{}, fmt.Errorf("advice: %w: %w", ErrAdvisor, advisor.ErrNoContent)
	}
	cur, err := e.store.Get(ctx, e.roomID)
	if err != nil {
		return Result{}, err
	}
	if err := rules.CheckAdvice(cur, teamID, e.maxAdvice); err != nil {
		return Result{}, err
	}
	view := cur.ViewFor(teamID)
	text, err := e.adv.Advise(ctx, *view.TeamByID(teamID), *view.Opponent(teamID), view.Match)
	if err != nil {
		return Result{}, fmt.Errorf("advice: %w: %w", ErrAdvisor, err)
	}
	res, err := e.send(ctx, request{
		teamID: teamID,
		intent: Intent{Kind: table.ActionAdvice},
		apply: func(r *table.Room) (bool, error) {
			return rules.UseAdvice(r, teamID, e.maxAdvice)
		},
	})
	if err != nil {
		return Result{}, err
	}
	res.Advice = text
	return res, nil
}

func (e *Engine) summarize(ctx context.Context, teamID string) (Result, error) {
	cur, err := e.store.Get(ctx, e.roomID)
	if err != nil {
		return Result{}, err
	}
	if !cur.Finished() {
		return Result{}, ErrNotFinished
	}
	if cur.Feedback != "" || e.adv == nil {
		return Result{View: cur.ViewFor(teamID)}, nil
	}
	text, err := e.adv.Summarize(ctx, cur)
	if err != nil {
		return Result{}, fmt.Errorf("summary: %w: %w", ErrAdvisor, err)
	}
	return e.send(ctx, request{
		teamID: teamID,
		intent: Intent{Kind: table.ActionSummary},
		apply: func(r *table.Room) (bool, error) {
			if r.Feedback != "" {
				return false, nil
			}
			r.Feedback = text
			r.Match.LastAction = &table.LastAction{TeamID: teamID, Kind: table.ActionSummary, At: e.clock.Now().UTC()}
			return true, nil
		},
	})
}

func (e *Engine) poster(ctx context.Context, teamID string, in Intent) (Result, error) {
	cur, err := e.store.Get(ctx, e.roomID)
	if err != nil {
		return Result{}, err
	}
	if !cur.Finished() {
		return Result{}, ErrNotFinished
	}
	if cur.WinnerPosterURL != "" || e.adv == nil {
		return Result{View: cur.ViewFor(teamID)}, nil
	}
	winner := Winner(cur)
	if winner == nil {
		return Result{}, ErrNoWinner
	}
	url, err := e.adv.RenderPoster(ctx, *winner, in.Images, in.Names)
	if err != nil {
		return Result{}, fmt.Errorf("poster: %w: %w", ErrAdvisor, err)
	}
	return e.send(ctx, request{
		teamID: teamID,
		intent: Intent{Kind: table.ActionPoster},
		apply: func(r *table.Room) (bool, error) {
			if r.WinnerPosterURL != "" {
				return false, nil
			}
			r.WinnerPosterURL = url
			r.Match.LastAction = &table.LastAction{TeamID: teamID, Kind: table.ActionPoster, At: e.clock.Now().UTC()}
			return true, nil
		},
	})
}

// Winner is the team with more winnings at the end, then more rounds won.
func Winner(r *table.Room) *table.Team {
	a, b := &r.TeamA, &r.TeamB
	switch {
	case a.Winnings > b.Winnings:
		return a
	case b.Winnings > a.Winnings:
		return b
	case r.Match.TeamAScore > r.Match.TeamBScore:
		return a
	case r.Match.TeamBScore > r.Match.TeamAScore:
		return b
	}
	return nil
}
