package calls

import (
	"net/http"

	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/httpkit"
	"partsiq_backend/platform/logger"
	"partsiq_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the call submission and review endpoints.
type Handler struct {
	service *Service
	val     *validator.Validator
	log     *logger.Logger
}

// NewHandler creates the calls HTTP handler.
func NewHandler(service *Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// RegisterRoutes mounts the call routes on an authenticated group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.submit)
	group.GET("/:id", h.get)
}

func (h *Handler) submit(c *gin.Context) {
	orgID, ok := httpkit.OrgID(c)
	if !ok {
		httpkit.HandleError(c, h.log, apperr.Unauthorized("missing organization"))
		return
	}
	callerID, _ := c.Get(httpkit.ContextUserIDKey)
	caller, _ := callerID.(uuid.UUID)

	var req SubmitCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, h.log, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, h.log, err)
		return
	}

	quoteRequestID, err := uuid.Parse(req.QuoteRequestID)
	if err != nil {
		httpkit.HandleError(c, h.log, apperr.Validation("invalid quote request id"))
		return
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		httpkit.HandleError(c, h.log, apperr.Validation("invalid supplier id"))
		return
	}

	err = h.service.Submit(c.Request.Context(), caller, InitiateRequest{
		QuoteRequestID:     quoteRequestID,
		SupplierID:         supplierID,
		OrganizationID:     orgID,
		ContactMethod:      ContactMethod(req.ContactMethod),
		CustomContext:      req.CustomContext,
		CustomInstructions: req.CustomInstructions,
	})
	if err != nil {
		httpkit.HandleError(c, h.log, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handler) get(c *gin.Context) {
	orgID, ok := httpkit.OrgID(c)
	if !ok {
		httpkit.HandleError(c, h.log, apperr.Unauthorized("missing organization"))
		return
	}

	callRecordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, h.log, apperr.Validation("invalid call id"))
		return
	}

	detail, err := h.service.Get(c.Request.Context(), orgID, callRecordID)
	if err != nil {
		httpkit.HandleError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, toCallDetailResponse(detail))
}
