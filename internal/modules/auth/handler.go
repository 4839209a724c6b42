package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/middleware"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")

	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)

	protected := g.Group("", authMW)
	protected.GET("/profile", h.profile)
	protected.PUT("/profile", h.updateProfile)
	protected.PUT("/password", h.changePassword)
}

// POST /auth/register
func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "email, name and password (min 8 chars) are required")
		return
	}
	user, err := h.svc.Register(c.Request.Context(), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// POST /auth/login
func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "email and password are required")
		return
	}
	user, pair, err := h.svc.Login(c.Request.Context(), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"user": user, "tokens": pair})
}

// POST /auth/refresh
func (h *Handler) refresh(c *gin.Context) {
	var dto RefreshDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "refresh_token is required")
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), dto.RefreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pair)
}

// GET /auth/profile
func (h *Handler) profile(c *gin.Context) {
	ident := middleware.CurrentIdentity(c)
	user, err := h.svc.Profile(c.Request.Context(), ident.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// PUT /auth/profile
func (h *Handler) updateProfile(c *gin.Context) {
	var dto UpdateProfileDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid profile payload")
		return
	}
	ident := middleware.CurrentIdentity(c)
	user, err := h.svc.UpdateProfile(c.Request.Context(), ident.UserID, dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// PUT /auth/password
func (h *Handler) changePassword(c *gin.Context) {
	var dto ChangePasswordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "old_password and new_password (min 8 chars) are required")
		return
	}
	ident := middleware.CurrentIdentity(c)
	if err := h.svc.ChangePassword(c.Request.Context(), ident.UserID, dto); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "password updated"})
}
