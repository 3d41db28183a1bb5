package live

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/realtime"
	"github.com/jwalitptl/careflow-api/internal/service/followup"
	"github.com/jwalitptl/careflow-api/internal/service/patient"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/httputil"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

const EventSnapshot = "snapshot"

type query func(ctx context.Context, c *gin.Context, p *model.Principal) (interface{}, error)

// view is one live query: who may watch it, what it reads and which
// collections invalidate it.
type view struct {
	roles       []model.Role
	collections []string
	query       query
}

func (v view) allows(p *model.Principal) bool {
	for _, r := range v.roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type Handler struct {
	hub       *realtime.Hub
	views     map[string]view
	keepAlive time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewHandler(hub *realtime.Hub, patients *patient.Service, followups *followup.Service,
	keepAlive time.Duration, log *logger.Logger, m *metrics.Metrics) *Handler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	h := &Handler{hub: hub, keepAlive: keepAlive, logger: log, metrics: m}
	h.views = buildViews(patients, followups)
	return h
}

func dashboard(patients *patient.Service, v patient.View) query {
	return func(ctx context.Context, c *gin.Context, p *model.Principal) (interface{}, error) {
		q := patient.ListQuery{View: v, Tab: c.Query("tab"), Search: c.Query("search")}
		if v == patient.ViewDoctor || v == patient.ViewNurse {
			q.StaffID = c.DefaultQuery("staff_id", p.Subject)
		}
		return patients.List(ctx, q)
	}
}

func buildViews(patients *patient.Service, followups *followup.Service) map[string]view {
	staff := []model.Role{model.RoleDoctor, model.RoleNurse, model.RoleLab, model.RoleRadiology}
	clinical := []model.Role{model.RoleDoctor, model.RoleNurse}
	patientsOnly := []string{model.CollectionPatients}

	return map[string]view{
		"doctor":    {roles: []model.Role{model.RoleDoctor}, collections: patientsOnly, query: dashboard(patients, patient.ViewDoctor)},
		"nurse":     {roles: clinical, collections: patientsOnly, query: dashboard(patients, patient.ViewNurse)},
		"lab":       {roles: []model.Role{model.RoleDoctor, model.RoleLab}, collections: patientsOnly, query: dashboard(patients, patient.ViewLab)},
		"radiology": {roles: []model.Role{model.RoleDoctor, model.RoleRadiology}, collections: patientsOnly, query: dashboard(patients, patient.ViewRadiology)},
		"patient": {
			roles:       append(staff, model.RolePatient),
			collections: []string{model.CollectionPatients, model.CollectionActions},
			query: func(ctx context.Context, c *gin.Context, p *model.Principal) (interface{}, error) {
				raw := c.Query("id")
				if p.Role == model.RolePatient {
					raw = p.Subject
				}
				id, err := uuid.Parse(raw)
				if err != nil {
					return nil, apperrors.BadRequest("invalid id", err)
				}
				rec, err := patients.Get(ctx, id)
				if err != nil {
					return nil, err
				}
				tasks, err := patients.Tasks(ctx, id)
				if err != nil {
					return nil, err
				}
				return gin.H{"patient": rec, "tasks": tasks}, nil
			},
		},
		"actions": {
			roles:       staff,
			collections: []string{model.CollectionActions},
			query: func(ctx context.Context, c *gin.Context, p *model.Principal) (interface{}, error) {
				return patients.ListDepartmentActions(ctx, c.Query("department"), c.Query("open") == "true")
			},
		},
		"alerts": {
			roles:       clinical,
			collections: []string{model.CollectionAlerts},
			query: func(ctx context.Context, c *gin.Context, p *model.Principal) (interface{}, error) {
				return followups.ListAlerts(ctx)
			},
		},
		"followups": {
			roles:       clinical,
			collections: []string{model.CollectionFollowUps, model.CollectionCheckIns},
			query: func(ctx context.Context, c *gin.Context, p *model.Principal) (interface{}, error) {
				return followups.ListFollowUps(ctx, c.Query("status"))
			},
		},
	}
}

// RegisterRoutes mounts the live endpoints; r must be authenticated and must
// not carry a request timeout.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/live/:view", h.Stream)
}

// Stream pushes the view's full record set on connect and again after every
// change to a watched collection. Notices arriving while a snapshot is being
// built collapse into the next snapshot.
func (h *Handler) Stream(c *gin.Context) {
	name := c.Param("view")
	v, ok := h.views[name]
	if !ok {
		httputil.RespondWithError(c, apperrors.NotFound("live view "+name, nil))
		return
	}
	p := middleware.PrincipalFrom(c)
	if p == nil {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}
	if !v.allows(p) {
		httputil.RespondWithError(c, apperrors.Forbidden("permission denied"))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	notices := h.hub.Subscribe(ctx, v.collections...)

	data, err := v.query(ctx, c, p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	h.send(c, name, data)

	log := h.logger.WithContext(ctx)
	log.Debug("Live view opened", "view", name, "role", string(p.Role))
	defer log.Debug("Live view closed", "view", name)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notices:
			if !ok {
				return
			}
			data, err := v.query(ctx, c, p)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error(err, "Live view query failed", "view", name)
				continue
			}
			h.send(c, name, data)
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (h *Handler) send(c *gin.Context, name string, data interface{}) {
	c.SSEvent(EventSnapshot, data)
	c.Writer.Flush()
	h.metrics.LiveSnapshots.WithLabelValues(name).Inc()
}
