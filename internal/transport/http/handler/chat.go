package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"natural-alert/internal/chat"
)

// ChatService is the slice of the chat service the handler needs.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (string, error)
}

type ChatHandler struct {
	chatService ChatService
}

type ChatRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and message are required"})
		return
	}

	answer, err := h.chatService.Chat(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate a response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": answer})
}
