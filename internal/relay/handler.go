package relay

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"glamtrack/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Mobile clients connect from app webviews with no stable origin.
		return true
	},
}

// HandleWebSocket upgrades an authenticated HTTP request to a tracking
// websocket connection. Clients pass the token as a query parameter
// because browsers cannot set headers on websocket handshakes.
func HandleWebSocket(hub *Hub, tracker *Tracker, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := middleware.ParseToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("relay: websocket upgrade failed: %v", err)
			return
		}

		client := NewClient(claims.UserID, claims.Role, conn, hub, tracker)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
