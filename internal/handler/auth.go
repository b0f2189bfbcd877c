package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/model"
	"ledmkt-backend/internal/service"
)

type AuthHandler struct {
	users *service.UserService
}

func NewAuthHandler(users *service.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: true, User: user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: true, User: user})
}

func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.LoginAsAdmin(c.Request.Context(), req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: true, User: user})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: false})
}

func (h *AuthHandler) Session(c *gin.Context) {
	user := h.users.CurrentUser()
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: user != nil, User: user})
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var patch model.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), patch)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: true, User: user})
}

func (h *AuthHandler) UpdateAvatar(c *gin.Context) {
	var req model.AvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.UpdateAvatar(c.Request.Context(), req.Avatar)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Authenticated: true, User: user})
}
