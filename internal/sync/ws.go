package sync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"osusume/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler streams the caller's session events. It must run behind
// auth.AuthMiddleware.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Debug().Err(err).Msg("ws upgrade failed")
			return
		}

		_ = ws.WriteMessage(websocket.TextMessage, hub.welcome("websocket", claims.SessionID))
		hub.AddWS(ws, claims.SessionID)
		hub.log.Info().Str("session", claims.SessionID).Msg("ws client connected")

		// Keep connection alive (ignore incoming messages)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.RemoveWS(ws)
		hub.log.Info().Str("session", claims.SessionID).Msg("ws client disconnected")
	}
}
