package callwebhook

import (
	"net/http"

	"partsiq_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Handler exposes the provider turn callback endpoint.
type Handler struct {
	service *Service
	log     *logger.Logger
}

// NewHandler creates the webhook HTTP handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// HandleTurn accepts one provider callback. Unmatchable callbacks still get
// a 200 so the provider does not retry them forever.
func (h *Handler) HandleTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("unparseable webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	resp := h.service.HandleTurn(c.Request.Context(), &req)
	c.JSON(http.StatusOK, resp)
}
