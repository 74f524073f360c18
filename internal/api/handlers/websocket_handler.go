package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/swiftcab/dispatch/pkg/logger"
	"github.com/swiftcab/dispatch/pkg/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy belongs to the fronting proxy
	},
}

// HandleWebSocket handles GET /v1/ws
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	userType := c.Query("user_type")
	if userID == "" || (userType != "passenger" && userType != "driver") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and user_type=passenger|driver are required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Gateway, conn, userID, userType, h.Logger)
	h.Gateway.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
