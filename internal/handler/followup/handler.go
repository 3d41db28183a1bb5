package followup

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/followup"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/httputil"
)

type Handler struct {
	service *followup.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *followup.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

// RegisterRoutes mounts alert and follow-up routes; r must be authenticated.
// The follow-up agent calls in with the service key.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	clinical := h.auth.RequireRole(model.RoleDoctor, model.RoleNurse)
	clinicalOrService := h.auth.RequireRole(model.RoleDoctor, model.RoleNurse, model.RoleService)

	alerts := r.Group("/alerts")
	{
		alerts.GET("", clinical, h.ListAlerts)
		alerts.POST("", clinicalOrService, h.RaiseAlert)
		alerts.PUT("/:id/resolve", clinical, h.ResolveAlert)
	}

	followups := r.Group("/followups")
	{
		followups.GET("", clinicalOrService, h.ListFollowUps)
		followups.GET("/:id/checkins", clinicalOrService, h.CheckIns)
		followups.POST("/:id/checkins", h.auth.RequireRole(model.RoleService), h.RecordCheckIn)
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid id", err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) ListAlerts(c *gin.Context) {
	alerts, err := h.service.ListAlerts(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alerts)
}

func (h *Handler) RaiseAlert(c *gin.Context) {
	var req model.RaiseAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}
	alert, err := h.service.RaiseAlert(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, alert)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	by := ""
	if p := middleware.PrincipalFrom(c); p != nil {
		by = p.Subject
	}
	alert, err := h.service.ResolveAlert(c.Request.Context(), id, by)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alert)
}

func (h *Handler) ListFollowUps(c *gin.Context) {
	list, err := h.service.ListFollowUps(c.Request.Context(), c.Query("status"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) CheckIns(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	list, err := h.service.CheckIns(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) RecordCheckIn(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req model.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return
	}
	checkIn, err := h.service.RecordCheckIn(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, checkIn)
}
