package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/catalog"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/form"
	"github.com/yourorg/fire-closure/pkg/formfill"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
	"github.com/yourorg/fire-closure/pkg/record"
	"github.com/yourorg/fire-closure/pkg/template"
)

// Handlers contains all API handlers
type Handlers struct {
	logger          *zap.Logger
	db              *db.Connection
	metrics         *Metrics
	templateManager *template.Manager
	recordManager   *record.Manager
	catalogManager  *catalog.Manager
	formFillManager *formfill.Manager
}

// NewHandlers creates new API handlers
func NewHandlers(logger *zap.Logger, deps *Dependencies) *Handlers {
	return &Handlers{
		logger:          logger,
		db:              deps.DB,
		metrics:         deps.Metrics,
		templateManager: deps.TemplateManager,
		recordManager:   deps.RecordManager,
		catalogManager:  deps.CatalogManager,
		formFillManager: deps.FormFillManager,
	}
}

// Health check handlers

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Readiness reports whether the database answers, with its pool statistics
func (h *Handlers) Readiness(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
		return
	}
	stats, err := h.db.GetStats()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":    true,
		"database": stats,
	})
}

// Me returns the authenticated caller
func (h *Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, auth.UserFromGin(c))
}

// Closure record handlers

// InitCierre creates the closure record of an incident
func (h *Handlers) InitCierre(c *gin.Context) {
	var req record.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.recordManager.Init(c.Request.Context(), auth.GetTenantIDFromGin(c), &req, auth.UserFromGin(c))
	if err != nil {
		h.fail(c, err, "failed to initialize closure record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetCierre returns the closure record of an incident
func (h *Handlers) GetCierre(c *gin.Context) {
	rec, err := h.recordManager.Get(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"))
	if err != nil {
		h.fail(c, err, "failed to get closure record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// PatchCierre merges a sparse patch into the closure record
func (h *Handlers) PatchCierre(c *gin.Context) {
	var patch closure.Payload
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := closure.ValidatePayload(&patch); err != nil {
		h.fail(c, err, "invalid closure patch")
		return
	}

	rec, err := h.recordManager.Patch(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"), &patch, auth.UserFromGin(c))
	if err != nil {
		h.fail(c, err, "failed to update closure record")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// FinalizarCierre marks the closure record extinguished
func (h *Handlers) FinalizarCierre(c *gin.Context) {
	rec, err := h.recordManager.Finalizar(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"), auth.UserFromGin(c))
	if err != nil {
		h.fail(c, err, "failed to finalize closure record")
		return
	}
	h.metrics.Transition(TransitionFinalizar)
	c.JSON(http.StatusOK, rec)
}

// ReabrirCierre reopens an extinguished closure record
func (h *Handlers) ReabrirCierre(c *gin.Context) {
	rec, err := h.recordManager.Reabrir(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"), auth.UserFromGin(c))
	if err != nil {
		h.fail(c, err, "failed to reopen closure record")
		return
	}
	h.metrics.Transition(TransitionReabrir)
	c.JSON(http.StatusOK, rec)
}

// Catalog handlers

// ListCatalogo returns one page of a catalog
func (h *Handlers) ListCatalogo(c *gin.Context) {
	page := getIntParam(c, "page", 1)
	pageSize := getIntParam(c, "pageSize", closure.DefaultPageSize)

	res, err := h.catalogManager.List(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("catalog"), page, pageSize)
	if err != nil {
		h.fail(c, err, "failed to list catalog")
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreateCatalogoItem adds an item to a catalog
func (h *Handlers) CreateCatalogoItem(c *gin.Context) {
	var req catalog.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.catalogManager.Create(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("catalog"), &req)
	if err != nil {
		h.fail(c, err, "failed to create catalog item")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// DeleteCatalogoItem removes an item from a catalog
func (h *Handlers) DeleteCatalogoItem(c *gin.Context) {
	err := h.catalogManager.Delete(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("catalog"), c.Param("item_id"))
	if err != nil {
		h.fail(c, err, "failed to delete catalog item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "catalog item deleted"})
}

// Closure form handlers

// GetFormularioCierre returns the filled closure form of an incident
func (h *Handlers) GetFormularioCierre(c *gin.Context) {
	f, err := h.formFillManager.Load(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"))
	if err != nil {
		h.fail(c, err, "failed to load closure form")
		return
	}
	c.JSON(http.StatusOK, f)
}

// SaveRespuestas stores the submitted answers of the closure form
func (h *Handlers) SaveRespuestas(c *gin.Context) {
	var req formfill.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.formFillManager.SaveResponses(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"), req.Respuestas, auth.UserFromGin(c))
	if err != nil {
		h.fail(c, err, "failed to save responses")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "responses saved", "count": len(req.Respuestas)})
}

// FinalizarIncendio finalizes the template-based closure form
func (h *Handlers) FinalizarIncendio(c *gin.Context) {
	err := h.formFillManager.FinalizeIncident(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("incident_id"), auth.UserFromGin(c))
	if err != nil {
		h.fail(c, err, "failed to finalize incident")
		return
	}
	h.metrics.Transition(TransitionFinalizarIncendio)
	c.JSON(http.StatusOK, gin.H{"message": "incident finalized"})
}

// Template handlers

// ListTemplates lists the templates of the tenant
func (h *Handlers) ListTemplates(c *gin.Context) {
	limit := getIntParam(c, "limit", 50)
	offset := getIntParam(c, "offset", 0)

	templates, total, err := h.templateManager.List(c.Request.Context(), &template.ListTemplatesRequest{
		TenantID: auth.GetTenantIDFromGin(c),
		Status:   models.TemplateStatus(c.Query("status")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.fail(c, err, "failed to list templates")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"templates": templates,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// CreateTemplate creates a draft template
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req template.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.CreatedBy = auth.UserFromGin(c).ID

	t, err := h.templateManager.Create(c.Request.Context(), auth.GetTenantIDFromGin(c), &req)
	if err != nil {
		h.fail(c, err, "failed to create template")
		return
	}
	c.JSON(http.StatusCreated, t)
}

// GetTemplate returns a template with its sections and fields
func (h *Handlers) GetTemplate(c *gin.Context) {
	t, err := h.templateManager.Get(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("template_id"))
	if err != nil {
		h.fail(c, err, "failed to get template")
		return
	}
	c.JSON(http.StatusOK, template.ToForm(t))
}

// UpdateTemplate renames or redescribes a template
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	var req template.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.templateManager.Update(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("template_id"), &req)
	if err != nil {
		h.fail(c, err, "failed to update template")
		return
	}
	c.JSON(http.StatusOK, template.ToForm(t))
}

// DeleteTemplate soft-deletes a template
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if err := h.templateManager.Delete(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("template_id")); err != nil {
		h.fail(c, err, "failed to delete template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}

// ActivateTemplate makes a template the active one
func (h *Handlers) ActivateTemplate(c *gin.Context) {
	t, err := h.templateManager.Activate(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("template_id"))
	if err != nil {
		h.fail(c, err, "failed to activate template")
		return
	}
	c.JSON(http.StatusOK, template.ToForm(t))
}

// AddSection appends a section to a template
func (h *Handlers) AddSection(c *gin.Context) {
	var req template.SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.templateManager.AddSection(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("template_id"), &req)
	if err != nil {
		h.fail(c, err, "failed to add section")
		return
	}
	c.JSON(http.StatusCreated, template.SectionToForm(*s))
}

// UpdateSection changes a section
func (h *Handlers) UpdateSection(c *gin.Context) {
	var req template.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.templateManager.UpdateSection(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("section_id"), &req)
	if err != nil {
		h.fail(c, err, "failed to update section")
		return
	}
	c.JSON(http.StatusOK, template.SectionToForm(*s))
}

// DeleteSection removes a section and its fields
func (h *Handlers) DeleteSection(c *gin.Context) {
	if err := h.templateManager.DeleteSection(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("section_id")); err != nil {
		h.fail(c, err, "failed to delete section")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "section deleted"})
}

// AddField appends a field to a section
func (h *Handlers) AddField(c *gin.Context) {
	var req template.FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.templateManager.AddField(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("section_id"), &req)
	if err != nil {
		h.fail(c, err, "failed to add field")
		return
	}
	c.JSON(http.StatusCreated, template.FieldToForm(*f))
}

// UpdateField replaces a field definition
func (h *Handlers) UpdateField(c *gin.Context) {
	var req template.FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.templateManager.UpdateField(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("field_id"), &req)
	if err != nil {
		h.fail(c, err, "failed to update field")
		return
	}
	c.JSON(http.StatusOK, template.FieldToForm(*f))
}

// DeleteField removes a field
func (h *Handlers) DeleteField(c *gin.Context) {
	if err := h.templateManager.DeleteField(c.Request.Context(), auth.GetTenantIDFromGin(c), c.Param("field_id")); err != nil {
		h.fail(c, err, "failed to delete field")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "field deleted"})
}

// fail maps a manager error to a status code. Unexpected errors are logged
// and answered with msg.
func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	var (
		formErrs    form.ValidationErrors
		formErr     form.ValidationError
		closureErrs closure.ValidationErrors
	)

	switch {
	case errors.As(err, &formErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": formErrs.ByField()})
	case errors.As(err, &closureErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": closureErrs.ByField()})
	case errors.As(err, &formErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrAdminRequired),
		errors.Is(err, lifecycle.ErrLocked),
		errors.Is(err, lifecycle.ErrAlreadyExtinguished):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, template.ErrTemplateActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, db.ErrNotFound), errors.Is(err, catalog.ErrUnknownCatalog):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// getIntParam reads an integer query parameter
func getIntParam(c *gin.Context, name string, defaultValue int) int {
	if v := c.Query(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
