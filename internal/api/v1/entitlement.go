package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/service"
	"github.com/memberflow/memberflow/internal/types"
)

type EntitlementHandler struct {
	service service.EntitlementService
	log     *logger.Logger
}

func NewEntitlementHandler(service service.EntitlementService, log *logger.Logger) *EntitlementHandler {
	return &EntitlementHandler{service: service, log: log}
}

func (h *EntitlementHandler) CheckFeature(c *gin.Context) {
	organizationID := c.Param("id")
	feature := types.FeatureKey(c.Param("feature"))

	if organizationID == "" {
		c.Error(ierr.NewError("organization ID is required").
			WithHint("Please provide a valid organization ID").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.HasFeature(c.Request.Context(), organizationID, feature)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *EntitlementHandler) ListFeatures(c *gin.Context) {
	organizationID := c.Param("id")
	if organizationID == "" {
		c.Error(ierr.NewError("organization ID is required").
			WithHint("Please provide a valid organization ID").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListFeatures(c.Request.Context(), organizationID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
