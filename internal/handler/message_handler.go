package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"shopchat/internal/middleware"
	"shopchat/pkg/log"
	"shopchat/pkg/utils"
)

// Resyncer republishes replies that were generated but not delivered
type Resyncer interface {
	Resync(ctx context.Context, userID int64, limit int) (int, error)
}

// MessageHandler message maintenance endpoints
type MessageHandler struct {
	resyncer Resyncer
}

// NewMessageHandler creates a message handler
func NewMessageHandler(resyncer Resyncer) *MessageHandler {
	return &MessageHandler{resyncer: resyncer}
}

// ResyncRequest optional body of a resync call
type ResyncRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=100"`
}

// Resync republishes ai_response_ready for the caller's undelivered replies
func (h *MessageHandler) Resync(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Fail(c, utils.ErrUnauthorized)
		return
	}

	var req ResyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(c, utils.CodeInvalidParam, "invalid parameters: "+err.Error())
		return
	}

	published, err := h.resyncer.Resync(c.Request.Context(), userID, req.Limit)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"user_id":   userID,
			"published": published,
			"error":     err.Error(),
		}).Error("Resync failed")
		utils.Fail(c, utils.WrapError(err, utils.CodeBusError, "resync failed"))
		return
	}
	utils.Success(c, gin.H{"published": published})
}
