package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/schemahub/registry/internal/registry"
)

// Handler handles registry HTTP requests.
type Handler struct {
	registry *registry.Registry
}

// NewHandler creates a new registry API handler.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// SchemaRequest is the request body for register, lookup and compatibility
// calls. SchemaType defaults to AVRO.
type SchemaRequest struct {
	Schema     string `json:"schema"`
	SchemaType string `json:"schemaType,omitempty"`
}

// RegisterResponse is the response body for a successful registration.
type RegisterResponse struct {
	ID int64 `json:"id"`
}

// SchemaInfoResponse describes a schema bound to a subject version.
type SchemaInfoResponse struct {
	Subject    string `json:"subject"`
	Version    int    `json:"version"`
	ID         int64  `json:"id"`
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}

// CompatibilityResponse is the response body for compatibility tests.
type CompatibilityResponse struct {
	IsCompatible bool     `json:"is_compatible"`
	Messages     []string `json:"messages,omitempty"`
}

// ConfigResponse is the response body for config reads.
type ConfigResponse struct {
	CompatibilityLevel string `json:"compatibilityLevel"`
}

// ConfigRequest is the request body for config updates.
type ConfigRequest struct {
	Compatibility string `json:"compatibility"`
}

// ErrorResponse is the error response body. Every failure names the
// parameter or rule that caused it.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// detailer is implemented by structured registry errors that carry fields
// worth surfacing in API responses.
type detailer interface {
	Details() map[string]interface{}
}

// writeError maps the registry error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var (
		invalidArg *registry.InvalidArgumentError
		invalidMod *registry.InvalidModeError
		parseErr   *registry.ParseError
		compatErr  *registry.CompatibilityError
		internal   *registry.InternalError
	)

	resp := ErrorResponse{Message: err.Error()}
	if d, ok := err.(detailer); ok {
		resp.Details = d.Details()
	}

	switch {
	case errors.As(err, &invalidArg):
		resp.Error = "invalid_argument"
		c.JSON(http.StatusBadRequest, resp)
	case errors.As(err, &invalidMod):
		resp.Error = "invalid_compatibility_mode"
		c.JSON(http.StatusUnprocessableEntity, resp)
	case errors.As(err, &parseErr):
		resp.Error = "invalid_schema"
		c.JSON(http.StatusUnprocessableEntity, resp)
	case errors.As(err, &compatErr):
		resp.Error = "incompatible_schema"
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, registry.ErrSubjectNotFound):
		resp.Error = "subject_not_found"
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, registry.ErrVersionNotFound), errors.Is(err, registry.ErrVersionDeleted):
		resp.Error = "version_not_found"
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, registry.ErrSchemaIDNotFound), errors.Is(err, registry.ErrSchemaNotFound):
		resp.Error = "schema_not_found"
		c.JSON(http.StatusNotFound, resp)
	case errors.As(err, &internal):
		slog.Error("Registry internal error", "error", err)
		resp.Error = "internal_error"
		c.JSON(http.StatusInternalServerError, resp)
	default:
		slog.Error("Unclassified registry error", "error", err)
		resp.Error = "internal_error"
		c.JSON(http.StatusInternalServerError, resp)
	}
}

// subjectParam parses the :subject path parameter as a scope key.
func subjectParam(c *gin.Context) (registry.Subject, bool) {
	subject, err := registry.ParseScopeKey(c.Param("subject"))
	if err != nil {
		writeError(c, err)
		return registry.Subject{}, false
	}
	return subject, true
}

// bindSchemaRequest parses the schema request body and resolves the format.
func bindSchemaRequest(c *gin.Context) (SchemaRequest, registry.Format, bool) {
	var req SchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &registry.InvalidArgumentError{Param: "body", Reason: "invalid JSON body"})
		return req, "", false
	}
	format := registry.FormatAvro
	if req.SchemaType != "" {
		format = registry.Format(req.SchemaType)
	}
	return req, format, true
}

// HandleRegister handles POST /subjects/{subject}/versions.
func (h *Handler) HandleRegister(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	req, format, ok := bindSchemaRequest(c)
	if !ok {
		return
	}

	reg, err := h.registry.Register(c.Request.Context(), subject, format, req.Schema)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RegisterResponse{ID: reg.SchemaID})
}

// HandleLookup handles POST /subjects/{subject}: returns the existing
// registration of the posted schema without mutating anything.
func (h *Handler) HandleLookup(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	req, format, ok := bindSchemaRequest(c)
	if !ok {
		return
	}

	reg, err := h.registry.CheckSchema(c.Request.Context(), subject, format, req.Schema)
	if err != nil {
		writeError(c, err)
		return
	}

	s, err := h.registry.GetSchemaByID(c.Request.Context(), reg.SchemaID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SchemaInfoResponse{
		Subject:    subject.ScopeKey(),
		Version:    reg.Version,
		ID:         reg.SchemaID,
		SchemaType: string(s.Format),
		Schema:     s.Raw,
	})
}

// HandleListSubjects handles GET /subjects.
func (h *Handler) HandleListSubjects(c *gin.Context) {
	subjects, err := h.registry.ListSubjects(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

// HandleListVersions handles GET /subjects/{subject}/versions.
func (h *Handler) HandleListVersions(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	versions, err := h.registry.ListVersions(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// HandleGetVersion handles GET /subjects/{subject}/versions/{version}.
func (h *Handler) HandleGetVersion(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	vs, err := h.registry.GetSchema(c.Request.Context(), subject, c.Param("version"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SchemaInfoResponse{
		Subject:    subject.ScopeKey(),
		Version:    vs.Version,
		ID:         vs.Schema.ID,
		SchemaType: string(vs.Schema.Format),
		Schema:     vs.Schema.Raw,
	})
}

// HandleGetSchemaByID handles GET /schemas/ids/{id}.
func (h *Handler) HandleGetSchemaByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, &registry.InvalidArgumentError{Param: "id", Reason: "must be an integer"})
		return
	}

	s, err := h.registry.GetSchemaByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schema":     s.Raw,
		"schemaType": string(s.Format),
	})
}

// HandleDeleteVersion handles DELETE /subjects/{subject}/versions/{version}.
func (h *Handler) HandleDeleteVersion(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	deleted, err := h.registry.DeleteVersion(c.Request.Context(), subject, c.Param("version"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}

// HandleDeleteSubject handles DELETE /subjects/{subject}.
func (h *Handler) HandleDeleteSubject(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	deleted, err := h.registry.DeleteSubject(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}

// HandleTestCompatibility handles
// POST /compatibility/subjects/{subject}/versions/{version}.
func (h *Handler) HandleTestCompatibility(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	req, format, ok := bindSchemaRequest(c)
	if !ok {
		return
	}

	compatible, causes, err := h.registry.TestCompatibility(
		c.Request.Context(), subject, format, req.Schema, c.Param("version"))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := CompatibilityResponse{IsCompatible: compatible}
	for _, cause := range causes {
		resp.Messages = append(resp.Messages, cause.String())
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGetGlobalConfig handles GET /config.
func (h *Handler) HandleGetGlobalConfig(c *gin.Context) {
	mode, err := h.registry.GlobalCompatibility(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{CompatibilityLevel: string(mode)})
}

// HandleSetGlobalConfig handles PUT /config.
func (h *Handler) HandleSetGlobalConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &registry.InvalidArgumentError{Param: "body", Reason: "invalid JSON body"})
		return
	}

	mode, err := h.registry.SetGlobalCompatibility(c.Request.Context(), registry.Mode(req.Compatibility))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{CompatibilityLevel: string(mode)})
}

// HandleGetSubjectConfig handles GET /config/{subject}: the effective mode,
// override or inherited global default.
func (h *Handler) HandleGetSubjectConfig(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	mode, err := h.registry.SubjectCompatibility(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{CompatibilityLevel: string(mode)})
}

// HandleSetSubjectConfig handles PUT /config/{subject}.
func (h *Handler) HandleSetSubjectConfig(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &registry.InvalidArgumentError{Param: "body", Reason: "invalid JSON body"})
		return
	}

	mode, err := h.registry.SetSubjectCompatibility(c.Request.Context(), subject, registry.Mode(req.Compatibility))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{CompatibilityLevel: string(mode)})
}

// HandleClearSubjectConfig handles DELETE /config/{subject}.
func (h *Handler) HandleClearSubjectConfig(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	if err := h.registry.ClearSubjectCompatibility(c.Request.Context(), subject); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
