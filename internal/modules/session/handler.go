package session

import (
	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/middleware"
	"github.com/lokatani/scale-core/internal/pkg/pagination"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

// Handler exposes the operator-facing session lifecycle endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/sessions", authMW)

	g.POST("", h.initiate)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/complete", h.complete)
	g.POST("/:id/abort", h.abort)
}

func callerFrom(c *gin.Context) Caller {
	ident := middleware.CurrentIdentity(c)
	return Caller{UserID: ident.UserID, Role: ident.Role}
}

// POST /sessions
func (h *Handler) initiate(c *gin.Context) {
	var dto InitiateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "variant is required: product or rompes")
		return
	}
	sess, err := h.svc.Initiate(c.Request.Context(), callerFrom(c).UserID, dto.Variant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sess)
}

// GET /sessions
func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(c.Request.Context(), callerFrom(c), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /sessions/:id
func (h *Handler) get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"), callerFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// POST /sessions/:id/complete
func (h *Handler) complete(c *gin.Context) {
	sess, err := h.svc.Complete(c.Request.Context(), c.Param("id"), callerFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// POST /sessions/:id/abort
func (h *Handler) abort(c *gin.Context) {
	sess, err := h.svc.Abort(c.Request.Context(), c.Param("id"), callerFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}
