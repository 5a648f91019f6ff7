package handlers

import (
	"net/http"

	"layover-match/internal/session"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	sessions *session.Manager
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

func NewMessageHandler(sessions *session.Manager) *MessageHandler {
	return &MessageHandler{sessions: sessions}
}

func (h *MessageHandler) GetMessages(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}

	messages, err := sess.Messages(c.Request.Context(), c.Param("match_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	message, err := sess.SendMessage(c.Request.Context(), c.Param("match_id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}
