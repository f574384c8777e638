package websocket

import (
	"sync"

	"ChipClash/internal/utils"

	"github.com/charmbracelet/log"
)

type HubInterface interface {
	SendToTeam(teamID string, msg OutgoingMessage)
	BroadcastToTeams(teamIDs []string, msg OutgoingMessage)
	Connected(teamID string) int
	Close()
}

// Hub fans messages out to every socket a team has open. A team is usually
// several members on different devices.
type Hub struct {
	clients    map[string]map[*Client]struct{} // teamID -> sockets
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq
	incoming   chan IncomingMessage
	OnIncoming func(IncomingMessage)
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	log        *log.Logger
}

type broadcastReq struct {
	Teams   []string
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastReq, 64),
		incoming:   make(chan IncomingMessage, 64),
		quit:       make(chan struct{}),
		log:        utils.Named("hub"),
	}
}

func (h *Hub) Run() {
	h.log.Info("hub started")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.TeamID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.TeamID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("register", "team", c.TeamID, "sockets", len(set))

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.TeamID]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.Send)
				}
				if len(set) == 0 {
					delete(h.clients, c.TeamID)
				}
			}
			h.mu.Unlock()
			h.log.Debug("unregister", "team", c.TeamID)

		case req := <-h.broadcast:
			h.mu.RLock()
			for _, team := range req.Teams {
				for c := range h.clients[team] {
					select {
					case c.Send <- req.Message:
					default:
						h.log.Warn("dropping message for slow client", "team", team, "event", req.Message.Event)
					}
				}
			}
			h.mu.RUnlock()

		case req := <-h.incoming:
			// handlers call back into the hub, so they run off the loop
			if h.OnIncoming != nil {
				go h.OnIncoming(req)
			}

		case <-h.quit:
			h.mu.Lock()
			for team, set := range h.clients {
				for c := range set {
					close(c.Send)
				}
				delete(h.clients, team)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) BroadcastToTeams(teams []string, msg OutgoingMessage) {
	select {
	case h.broadcast <- broadcastReq{Teams: teams, Message: msg}:
	case <-h.quit:
	}
}

func (h *Hub) SendToTeam(team string, msg OutgoingMessage) {
	h.BroadcastToTeams([]string{team}, msg)
}

// Connected counts the team's open sockets.
func (h *Hub) Connected(team string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[team])
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
