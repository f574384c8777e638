package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /ws  (需带 JWT，middleware 注入 team / room)
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		team := c.GetString("team")
		if team == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "team token required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("upgrade failed", "team", team, "err", err)
			return
		}

		client := &Client{
			TeamID: team,
			RoomID: c.GetString("room"),
			Conn:   conn,
			Send:   make(chan OutgoingMessage, 32),
			Hub:    hub,
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
