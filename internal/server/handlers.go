package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vitebski/schema-designer/internal/analyzer"
	"github.com/vitebski/schema-designer/internal/autosave"
	"github.com/vitebski/schema-designer/internal/designer"
	"github.com/vitebski/schema-designer/internal/exporter"
	"github.com/vitebski/schema-designer/internal/generator"
	"github.com/vitebski/schema-designer/internal/history"
	"github.com/vitebski/schema-designer/internal/metrics"
	"github.com/vitebski/schema-designer/internal/sanitizer"
	"github.com/vitebski/schema-designer/internal/store"
	"github.com/vitebski/schema-designer/pkg/models"
)

// Schema templates accepted by createSchema
const (
	TemplateBlank  = ""
	TemplateSample = "sample"
)

type createSchemaRequest struct {
	Name     string        `json:"name"`
	Template string        `json:"template"`
	Graph    *models.Graph `json:"graph"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// graphResponse is returned by every call that changes the live graph
type graphResponse struct {
	Graph   models.Graph  `json:"graph"`
	History history.State `json:"history"`
	Changed bool          `json:"changed"`
	Pending bool          `json:"pendingSave"`
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, designer.ErrNoOwner):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, designer.ErrInvalidAction),
		errors.Is(err, designer.ErrUnknownNode),
		errors.Is(err, designer.ErrUnknownEdge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, autosave.ErrSaveInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.Errorf("%s: %v", message, err)
	}
	Fail(c, status, err, message)
}

func (s *Server) session(c *gin.Context) (*designer.Session, bool) {
	sess, err := s.Manager.Open(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to open schema")
		return nil, false
	}
	return sess, true
}

func graphState(sess *designer.Session, g models.Graph, changed bool) graphResponse {
	return graphResponse{
		Graph:   g,
		History: sess.HistoryState(),
		Changed: changed,
		Pending: sess.PendingSave(),
	}
}

// listSchemas handles GET /api/v1/schemas
func (s *Server) listSchemas(c *gin.Context) {
	records, err := s.Manager.List(c.Request.Context(), currentUser(c))
	if err != nil {
		s.fail(c, err, "Failed to list schemas")
		return
	}
	Success(c, http.StatusOK, records, "")
}

// createSchema handles POST /api/v1/schemas
func (s *Server) createSchema(c *gin.Context) {
	var req createSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	var g models.Graph
	switch strings.ToLower(req.Template) {
	case TemplateBlank:
		if req.Graph != nil {
			g = *req.Graph
		}
	case TemplateSample:
		generated, err := generator.NewDataGenerator(0, s.Logger).Generate(s.SampleTables)
		if err != nil {
			s.fail(c, err, "Failed to build sample schema")
			return
		}
		g = generated
	default:
		Fail(c, http.StatusBadRequest, nil, "Unknown template "+req.Template)
		return
	}

	record, err := s.Manager.Create(c.Request.Context(), currentUser(c), req.Name, g)
	if err != nil {
		s.fail(c, err, "Failed to create schema")
		return
	}
	Success(c, http.StatusCreated, record, "Schema created")
}

// getSchema handles GET /api/v1/schemas/:id
func (s *Server) getSchema(c *gin.Context) {
	record, err := s.Manager.Load(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to load schema")
		return
	}
	Success(c, http.StatusOK, record, "")
}

// renameSchema handles PATCH /api/v1/schemas/:id
func (s *Server) renameSchema(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	sess, ok := s.session(c)
	if !ok {
		return
	}
	Success(c, http.StatusOK, gin.H{"name": sess.Rename(req.Name)}, "Schema renamed")
}

// deleteSchema handles DELETE /api/v1/schemas/:id
func (s *Server) deleteSchema(c *gin.Context) {
	if err := s.Manager.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.fail(c, err, "Failed to delete schema")
		return
	}
	Success(c, http.StatusOK, nil, "Schema deleted")
}

// dispatchAction handles POST /api/v1/schemas/:id/actions
func (s *Server) dispatchAction(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	action, err := designer.DecodeAction(body)
	if err != nil {
		Fail(c, http.StatusBadRequest, err, "Invalid action")
		return
	}

	sess, ok := s.session(c)
	if !ok {
		return
	}
	g, err := sess.Dispatch(action)
	if err != nil {
		s.fail(c, err, "Action rejected")
		return
	}
	Success(c, http.StatusOK, graphState(sess, g, true), "")
}

// undo handles POST /api/v1/schemas/:id/undo
func (s *Server) undo(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	g, changed := sess.Undo()
	Success(c, http.StatusOK, graphState(sess, g, changed), "")
}

// redo handles POST /api/v1/schemas/:id/redo
func (s *Server) redo(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	g, changed := sess.Redo()
	Success(c, http.StatusOK, graphState(sess, g, changed), "")
}

// save handles POST /api/v1/schemas/:id/save
func (s *Server) save(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.SaveNow(c.Request.Context()); err != nil {
		s.fail(c, err, "Failed to save schema")
		return
	}
	Success(c, http.StatusOK, sess.Record(), "Changes saved")
}

// closeSchema handles POST /api/v1/schemas/:id/close
func (s *Server) closeSchema(c *gin.Context) {
	if err := s.Manager.Close(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.fail(c, err, "Failed to close schema")
		return
	}
	Success(c, http.StatusOK, nil, "Schema closed")
}

// history handles GET /api/v1/schemas/:id/history
func (s *Server) history(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	Success(c, http.StatusOK, sess.HistoryState(), "")
}

// notifications handles GET /api/v1/schemas/:id/notifications
func (s *Server) notifications(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	Success(c, http.StatusOK, sess.Notifications(), "")
}

func writeDocument(c *gin.Context, doc exporter.Document) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, doc.ContentType+"; charset=utf-8", []byte(doc.Content))
}

// exportSchema handles GET /api/v1/schemas/:id/export?format=sql|json
func (s *Server) exportSchema(c *gin.Context) {
	format, err := exporter.ParseFormat(c.DefaultQuery("format", string(exporter.FormatSQL)))
	if err != nil {
		Fail(c, http.StatusBadRequest, err, "Invalid export format")
		return
	}
	record, err := s.Manager.Load(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to load schema")
		return
	}
	g := sanitizer.SanitizeGraph(record.Graph())
	doc, err := exporter.Export(record.Name, format, g.Nodes, g.Edges)
	if err != nil {
		s.fail(c, err, "Failed to export schema")
		return
	}
	metrics.Exported(string(format))
	writeDocument(c, doc)
}

// exportGraph handles POST /api/v1/export?format=sql|json. It needs no
// identity and never touches a store.
func (s *Server) exportGraph(c *gin.Context) {
	format, err := exporter.ParseFormat(c.DefaultQuery("format", string(exporter.FormatSQL)))
	if err != nil {
		Fail(c, http.StatusBadRequest, err, "Invalid export format")
		return
	}
	var req createSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Graph == nil {
		Fail(c, http.StatusBadRequest, err, "Request body must contain a graph")
		return
	}
	g := sanitizer.SanitizeGraph(*req.Graph)
	doc, err := exporter.Export(req.Name, format, g.Nodes, g.Edges)
	if err != nil {
		s.fail(c, err, "Failed to export schema")
		return
	}
	metrics.Exported(string(format))
	writeDocument(c, doc)
}

// analysis handles GET /api/v1/schemas/:id/analysis
func (s *Server) analysis(c *gin.Context) {
	record, err := s.Manager.Load(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to load schema")
		return
	}
	report := analyzer.NewSchemaAnalyzer(s.Logger).Analyze(record.Graph())
	Success(c, http.StatusOK, report, "")
}

// dashboard handles GET /api/v1/dashboard
func (s *Server) dashboard(c *gin.Context) {
	records, err := s.Manager.List(c.Request.Context(), currentUser(c))
	if err != nil {
		s.fail(c, err, "Failed to load dashboard")
		return
	}
	Success(c, http.StatusOK, analyzer.Dashboard(records), "")
}

// touchPresence handles POST /api/v1/schemas/:id/presence. Collaborators
// viewing another user's schema name its owner with ?owner=.
func (s *Server) touchPresence(c *gin.Context) {
	if s.Presence == nil {
		Fail(c, http.StatusNotImplemented, nil, "Presence requires the realtime store")
		return
	}
	user := currentUser(c)
	owner := c.DefaultQuery("owner", user)
	if err := s.Presence.Touch(c.Request.Context(), owner, c.Param("id"), user); err != nil {
		s.fail(c, err, "Failed to record presence")
		return
	}
	Success(c, http.StatusOK, nil, "")
}

// presence handles GET /api/v1/schemas/:id/presence
func (s *Server) presence(c *gin.Context) {
	if s.Presence == nil {
		Fail(c, http.StatusNotImplemented, nil, "Presence requires the realtime store")
		return
	}
	owner := c.DefaultQuery("owner", currentUser(c))
	users, err := s.Presence.ActiveCollaborators(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to load collaborators")
		return
	}
	if users == nil {
		users = []string{}
	}
	Success(c, http.StatusOK, gin.H{"collaborators": users}, "")
}
