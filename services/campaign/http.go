package campaign

import (
	"net/http"
	"time"

	"adcampaign-controlplane/pkg/db/pagination"
	"adcampaign-controlplane/pkg/httpapi"
	"adcampaign-controlplane/services/access"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r httpapi.Router, svc *Service) {
	h := &handler{svc: svc}

	g := r.Group("/campaigns")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.POST("/:id/status", h.updateStatus)
	g.DELETE("/:id", h.delete)
}

type createRequest struct {
	CompanyID   int64      `json:"company_id,string" binding:"required"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

type updateRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type listQuery struct {
	Status string `form:"status"`
	pagination.Pagination
}

func (h *handler) create(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req createRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.svc.Create(c.Request.Context(), actor, CreateRequest(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handler) get(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) list(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var q listQuery
	if err := httpapi.BindQuery(c, &q); err != nil {
		_ = c.Error(err)
		return
	}

	req := ListRequest{Pagination: q.Pagination}
	if q.Status != "" {
		st, err := ParseStatus(q.Status)
		if err != nil {
			_ = c.Error(statusError(q.Status, err))
			return
		}
		req.Status = &st
	}

	out, err := h.svc.List(c.Request.Context(), actor, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) update(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req updateRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.svc.Update(c.Request.Context(), actor, id, UpdateRequest(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) updateStatus(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req statusRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.svc.UpdateStatus(c.Request.Context(), actor, id, Status(req.Status))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) delete(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := httpapi.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
