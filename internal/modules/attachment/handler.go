package attachment

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/middleware"
	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

// maxImageBytes caps uploaded images at 8 MiB.
const maxImageBytes = 8 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/sessions", authMW)

	g.POST("/:id/image", h.attachImage)
	g.POST("/:id/ml-result", h.attachResult)
	g.POST("/:id/identify", h.identify)
}

func callerFrom(c *gin.Context) Caller {
	ident := middleware.CurrentIdentity(c)
	return Caller{UserID: ident.UserID, Role: ident.Role}
}

// readImage accepts either a multipart "file" part or a raw body.
func readImage(c *gin.Context) ([]byte, string, error) {
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > maxImageBytes {
			return nil, "", apperrors.New(apperrors.KindValidation, "image exceeds size limit")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.KindValidation, "unreadable upload", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.KindValidation, "unreadable upload", err)
		}
		return data, fh.Header.Get("Content-Type"), nil
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindValidation, "unreadable body", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", apperrors.New(apperrors.KindValidation, "image exceeds size limit")
	}
	return data, c.ContentType(), nil
}

// POST /sessions/:id/image
func (h *Handler) attachImage(c *gin.Context) {
	data, contentType, err := readImage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	sess, err := h.svc.AttachImage(c.Request.Context(), c.Param("id"), callerFrom(c), data, contentType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": sess.ID, "image_url": sess.ImageURL})
}

// POST /sessions/:id/ml-result
func (h *Handler) attachResult(c *gin.Context) {
	var dto struct {
		Results []models.Prediction `json:"results" binding:"required"`
	}
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "results are required")
		return
	}
	sess, err := h.svc.AttachResult(c.Request.Context(), c.Param("id"), callerFrom(c), dto.Results)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": sess.ID, "ml_result": sess.MLResult})
}

// POST /sessions/:id/identify
func (h *Handler) identify(c *gin.Context) {
	data, contentType, err := readImage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	sess, err := h.svc.Identify(c.Request.Context(), c.Param("id"), callerFrom(c), data, contentType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"session_id": sess.ID,
		"image_url":  sess.ImageURL,
		"ml_result":  sess.MLResult,
	})
}
