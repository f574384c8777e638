package websocket

import "encoding/json"

type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// IncomingMessage is a team intent read from a socket. From and Room come
// from the connection's token, never from the payload.
type IncomingMessage struct {
	From  string          `json:"-"`
	Room  string          `json:"-"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
