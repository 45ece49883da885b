package assignment

import (
	"net/http"

	"adcampaign-controlplane/pkg/httpapi"
	"adcampaign-controlplane/services/access"

	"github.com/gin-gonic/gin"
)

type handler struct {
	registry *Registry
}

func registerRoutes(r httpapi.Router, registry *Registry) {
	h := &handler{registry: registry}

	g := r.Group("/campaigns/:id/assignments")
	g.GET("", h.list)
	g.POST("", h.assign)
	g.DELETE("/:contractor_id", h.remove)
}

type assignRequest struct {
	ContractorID int64 `json:"contractor_id,string" binding:"required"`
}

func (h *handler) list(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	campaignID, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	rows, err := h.registry.List(c.Request.Context(), actor, campaignID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": rows})
}

func (h *handler) assign(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	campaignID, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req assignRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.registry.Assign(c.Request.Context(), actor, campaignID, req.ContractorID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handler) remove(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	campaignID, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	contractorID, err := httpapi.ParamID(c, "contractor_id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.registry.Remove(c.Request.Context(), actor, campaignID, contractorID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
