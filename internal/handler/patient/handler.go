package patient

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/careflow-api/internal/journey"
	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/internal/service/patient"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/httputil"
)

var staffRoles = []model.Role{model.RoleDoctor, model.RoleNurse, model.RoleLab, model.RoleRadiology}

// subStatusRoles lists the progress fields each role may move. Doctors may
// move all of them.
var subStatusRoles = map[model.Role]map[journey.SubStatusKind]bool{
	model.RoleLab:       {journey.SubLab: true},
	model.RoleRadiology: {journey.SubRadiology: true},
	model.RoleNurse:     {journey.SubPharmacy: true},
}

type Handler struct {
	service *patient.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *patient.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

// RegisterRoutes mounts the patient and action routes; r must be
// authenticated.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	staff := h.auth.RequireRole(staffRoles...)
	staffOrPatient := h.auth.RequireRole(append(staffRoles, model.RolePatient)...)
	doctor := h.auth.RequireRole(model.RoleDoctor)
	clinical := h.auth.RequireRole(model.RoleDoctor, model.RoleNurse)

	patients := r.Group("/patients")
	{
		patients.POST("", doctor, h.Admit)
		patients.GET("", staff, h.List)
		patients.GET("/code/:code", staffOrPatient, h.GetByCode)
		patients.GET("/:id", staffOrPatient, h.Get)
		patients.GET("/:id/tasks", staffOrPatient, h.Tasks)
		patients.GET("/:id/actions", staffOrPatient, h.ListActions)
		patients.GET("/:id/history", staffOrPatient, h.History)

		patients.POST("/:id/orders", doctor, h.Order)
		patients.DELETE("/:id/orders/:kind", doctor, h.RevertOrder)
		patients.PUT("/:id/substatus", staff, h.AdvanceSubStatus)
		patients.POST("/:id/finalize", doctor, h.Finalize)
		patients.PUT("/:id/status", clinical, h.SetStatus)
		patients.PUT("/:id/priority", clinical, h.SetPriority)
		patients.PUT("/:id/nurse", doctor, h.AssignNurse)
	}

	actions := r.Group("/actions", staff)
	{
		actions.GET("", h.ListDepartmentActions)
		actions.PUT("/:id/status", h.AdvanceAction)
	}
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// patientID parses :id and keeps patient callers to their own record.
func (h *Handler) patientID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return id, false
	}
	if !ownsRecord(c, id) {
		httputil.RespondWithError(c, apperrors.Forbidden("patients may only access their own record"))
		return uuid.Nil, false
	}
	return id, true
}

func ownsRecord(c *gin.Context, id uuid.UUID) bool {
	p := middleware.PrincipalFrom(c)
	return p == nil || p.Role != model.RolePatient || p.Subject == id.String()
}

func caller(c *gin.Context) *model.Principal {
	if p := middleware.PrincipalFrom(c); p != nil {
		return p
	}
	return &model.Principal{}
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, httputil.BindError(err))
		return false
	}
	return true
}

func respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, data)
}

func (h *Handler) Admit(c *gin.Context) {
	var req model.CreatePatientRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.service.Admit(c.Request.Context(), caller(c).Subject, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, p)
}

// List serves the role dashboards. The view defaults to the caller's role
// and the doctor and nurse views are scoped to the caller.
func (h *Handler) List(c *gin.Context) {
	p := caller(c)
	q := patient.ListQuery{
		View:    patient.View(c.DefaultQuery("view", string(p.Role))),
		StaffID: c.DefaultQuery("staff_id", p.Subject),
		Tab:     c.Query("tab"),
		Search:  c.Query("search"),
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			httputil.RespondWithError(c, apperrors.BadRequest("limit must be a non-negative integer", err))
			return
		}
		q.Limit = n
	}
	patients, err := h.service.List(c.Request.Context(), q)
	respond(c, patients, err)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := h.patientID(c)
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), id)
	respond(c, p, err)
}

func (h *Handler) GetByCode(c *gin.Context) {
	p, err := h.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if !ownsRecord(c, p.ID) {
		httputil.RespondWithError(c, apperrors.NotFound("Patient ID", nil))
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) Tasks(c *gin.Context) {
	id, ok := h.patientID(c)
	if !ok {
		return
	}
	tasks, err := h.service.Tasks(c.Request.Context(), id)
	respond(c, tasks, err)
}

func (h *Handler) ListActions(c *gin.Context) {
	id, ok := h.patientID(c)
	if !ok {
		return
	}
	actions, err := h.service.ListActions(c.Request.Context(), id)
	respond(c, actions, err)
}

func (h *Handler) History(c *gin.Context) {
	id, ok := h.patientID(c)
	if !ok {
		return
	}
	report, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if c.Query("format") == "text" {
		c.String(http.StatusOK, report)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"report": report})
}

func (h *Handler) Order(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.OrderRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.service.Order(c.Request.Context(), id, caller(c).Subject, &req)
	respond(c, p, err)
}

func (h *Handler) RevertOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var expected *int64
	if v := c.Query("expected_version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("expected_version must be an integer", err))
			return
		}
		expected = &n
	}
	p, err := h.service.RevertOrder(c.Request.Context(), id, caller(c).Subject, c.Param("kind"), expected)
	respond(c, p, err)
}

func (h *Handler) AdvanceSubStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.SubStatusRequest
	if !bind(c, &req) {
		return
	}
	p := caller(c)
	if allowed, limited := subStatusRoles[p.Role]; limited {
		kind, _ := journey.ParseSubStatusKind(req.Kind)
		if !allowed[kind] {
			httputil.RespondWithError(c, apperrors.Forbidden("role "+string(p.Role)+" may not update "+req.Kind+" status"))
			return
		}
	}
	updated, err := h.service.AdvanceSubStatus(c.Request.Context(), id, p.Subject, &req)
	respond(c, updated, err)
}

func (h *Handler) Finalize(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.FinalizeRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.service.Finalize(c.Request.Context(), id, caller(c).Subject, &req)
	respond(c, p, err)
}

func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.StatusRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.service.SetStatus(c.Request.Context(), id, caller(c).Subject, &req)
	respond(c, p, err)
}

func (h *Handler) SetPriority(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.PriorityRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.service.SetPriority(c.Request.Context(), id, caller(c).Subject, &req)
	respond(c, p, err)
}

func (h *Handler) AssignNurse(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.AssignNurseRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.service.AssignNurse(c.Request.Context(), id, caller(c).Subject, &req)
	respond(c, p, err)
}

func (h *Handler) ListDepartmentActions(c *gin.Context) {
	openOnly := c.Query("open") == "true"
	actions, err := h.service.ListDepartmentActions(c.Request.Context(), c.Query("department"), openOnly)
	respond(c, actions, err)
}

func (h *Handler) AdvanceAction(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.ActionStatusRequest
	if !bind(c, &req) {
		return
	}
	a, err := h.service.AdvanceAction(c.Request.Context(), id, req.Status)
	respond(c, a, err)
}
