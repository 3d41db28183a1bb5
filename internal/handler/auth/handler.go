package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/internal/model"
	authsvc "github.com/jwalitptl/careflow-api/internal/service/auth"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/httputil"
)

type Handler struct {
	service *authsvc.Service
}

func NewHandler(service *authsvc.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the public login endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/patient-login", h.PatientLogin)
	}
}

// RegisterStaffRoutes mounts the roster listing; r must be authenticated.
func (h *Handler) RegisterStaffRoutes(r gin.IRouter) {
	r.GET("/staff/:role", h.ListStaff)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	token, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, token)
}

func (h *Handler) PatientLogin(c *gin.Context) {
	var req model.PatientLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}

	token, err := h.service.PatientLogin(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, token)
}

func (h *Handler) ListStaff(c *gin.Context) {
	role, err := model.ParseStaffRole(c.Param("role"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}
	httputil.RespondWithSuccess(c, h.service.Staff(role))
}
