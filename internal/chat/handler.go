package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowyourfan-backend/internal/shared/server/respond"
)

// UnavailableMessage is shown to users in place of any gateway failure detail.
const UnavailableMessage = "The assistant is unavailable right now. Please try again later."

// Handler exposes the chat pipeline over HTTP.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.chat)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	answer, err := h.Svc.Answer(c.Request.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "message is required and must be at most 2000 characters", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "service_unavailable", UnavailableMessage, nil)
		}
		return
	}
	respond.OK(c, chatResponse{Response: answer})
}
