package directory

import (
	"net/http"

	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/httpapi"
	"adcampaign-controlplane/services/access"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func registerRoutes(r httpapi.Router, svc *Service) {
	h := &handler{svc: svc}

	r.POST("/companies", h.create)
	r.GET("/companies/:id", h.get)
}

type createCompanyRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *handler) create(c *gin.Context) {
	actor, err := access.FromContext(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req createCompanyRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.svc.CreateCompany(c.Request.Context(), actor, req.Name)
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

	if !actor.CoversCompany(id) {
		_ = c.Error(errutil.Forbidden("not a member of this company", nil,
			errutil.WithReason(errutil.ReasonOutOfScope)))
		return
	}

	out, err := h.svc.Company(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
