package image

import (
	"context"
	"net/http"

	"adcampaign-controlplane/pkg/db/pagination"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/httpapi"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/minio"
	"adcampaign-controlplane/services/access"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type handler struct {
	svc       *Service
	presigner minio.Presigner
}

func registerRoutes(r httpapi.Router, svc *Service, presigner minio.Presigner) {
	h := &handler{svc: svc, presigner: presigner}

	r.GET("/campaigns/:id/images", h.list)
	r.POST("/campaigns/:id/images", h.upload)
	r.GET("/campaigns/:id/images/summary", h.summary)
	r.GET("/images/:id", h.get)
	r.POST("/images/:id/review", h.review)
}

type uploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	Path     string `json:"path" binding:"required"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type reviewRequest struct {
	Decision string `json:"decision" binding:"required"`
	Reason   string `json:"reason"`
}

type listQuery struct {
	Status string `form:"status"`
	pagination.Pagination
}

type imageView struct {
	*Image
	DownloadURL string `json:"download_url,omitempty"`
}

// view attaches a presigned download URL. A presign failure only drops the
// URL, the metadata is still returned.
func (h *handler) view(ctx context.Context, img *Image) imageView {
	url, err := h.presigner.PresignGet(ctx, img.Path)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to presign image url",
			zap.Int64("image_id", img.ID), zap.Error(err))
	}
	return imageView{Image: img, DownloadURL: url}
}

func (h *handler) upload(c *gin.Context) {
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

	var req uploadRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	img, err := h.svc.Upload(c.Request.Context(), actor, campaignID, FileDescriptor(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, h.view(c.Request.Context(), img))
}

func (h *handler) review(c *gin.Context) {
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

	var req reviewRequest
	if err := httpapi.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	img, err := h.svc.Review(c.Request.Context(), actor, id, req.Decision, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), img))
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

	img, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), img))
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

	var q listQuery
	if err := httpapi.BindQuery(c, &q); err != nil {
		_ = c.Error(err)
		return
	}

	req := ListRequest{Pagination: q.Pagination}
	if q.Status != "" {
		st, err := ParseStatus(q.Status)
		if err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid image status", err,
				errutil.WithDetails(errutil.Detail{Field: "status", Message: q.Status})))
			return
		}
		req.Status = &st
	}

	out, err := h.svc.List(c.Request.Context(), actor, campaignID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	views := make([]imageView, 0, len(out.Images))
	for _, img := range out.Images {
		views = append(views, h.view(c.Request.Context(), img))
	}
	c.JSON(http.StatusOK, gin.H{"images": views, "page_info": out.PageInfo})
}

func (h *handler) summary(c *gin.Context) {
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

	out, err := h.svc.Summary(c.Request.Context(), actor, campaignID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
