package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatapp/internal/auth"
	"chatapp/internal/service"
	"chatapp/internal/ws"
)

type Handler struct {
	Service *service.MessageService
	Hub     *ws.Hub
}

func NewAPIHandler(service *service.MessageService, hub *ws.Hub) *Handler {
	return &Handler{
		Service: service,
		Hub:     hub,
	}
}

type SendMessageRequest struct {
	// Text and Image are individually optional but at least one must be
	// present; Image carries the inline-encoded binary to upload.
	Text  string `json:"text"`
	Image string `json:"image"`
}

type StatusResponse struct {
	Message string `json:"message"`
}

// ListUsers returns every user except the caller, for the contact
// sidebar.
func (h *Handler) ListUsers(c *gin.Context) {
	me := auth.CurrentUser(c)
	users, err := h.Service.ListUsers(c.Request.Context(), me.ID.Hex())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetMessages returns the caller's conversation with user :id.
func (h *Handler) GetMessages(c *gin.Context) {
	me := auth.CurrentUser(c)
	peerID := c.Param("id")
	messages, err := h.Service.ListConversation(c.Request.Context(), me.ID.Hex(), peerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage creates a message to receiver :id and pushes it to the
// receiver's live connection when there is one.
func (h *Handler) SendMessage(c *gin.Context) {
	me := auth.CurrentUser(c)
	receiverID := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.Service.Send(c.Request.Context(), me.ID.Hex(), receiverID, req.Text, req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) DeleteForMe(c *gin.Context) {
	me := auth.CurrentUser(c)
	if err := h.Service.DeleteForMe(c.Request.Context(), c.Param("messageId"), me.ID.Hex()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Message: "Message deleted for you"})
}

func (h *Handler) DeleteForEveryone(c *gin.Context) {
	me := auth.CurrentUser(c)
	if err := h.Service.DeleteForEveryone(c.Request.Context(), c.Param("messageId"), me.ID.Hex()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Message: "Message deleted for everyone"})
}

func (h *Handler) ClearChat(c *gin.Context) {
	me := auth.CurrentUser(c)
	if err := h.Service.ClearConversation(c.Request.Context(), me.ID.Hex(), c.Param("chatWith")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Message: "Chat cleared for you"})
}

// ServeWS upgrades to a websocket and associates the connection with
// the identity handed over on the handshake query.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if err := h.Hub.Serve(c.Writer, c.Request, userID); err != nil {
		// Upgrade failures have already written their own response.
		return
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
