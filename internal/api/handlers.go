package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/service"
	"github.com/fertility-cds-server/internal/session"
)

// ClassifyResponse is the result of classifying one observation.
type ClassifyResponse struct {
	Findings    []domain.Finding `json:"findings"`
	MaxSeverity domain.Severity  `json:"maxSeverity,omitempty"`
	BMI         *float64         `json:"bmi,omitempty"`
	BMIBand     domain.BMIBand   `json:"bmiBand,omitempty"`
}

type bmiRequest struct {
	WeightKg *float64 `json:"weightKg"`
	HeightCm *float64 `json:"heightCm"`
}

type createSessionRequest struct {
	PatientRef string `json:"patientRef"`
}

type advanceRequest struct {
	Option *int   `json:"option"`
	Label  string `json:"label"`
}

type recommendationRequest struct {
	Key string `json:"key"`
}

type catalogRequest struct {
	TradeName string `json:"tradeName"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleClassify(c *gin.Context) {
	var obs domain.Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		badRequest(c, "invalid observation", err)
		return
	}
	if err := obs.Validate(); err != nil {
		s.respondError(c, err)
		return
	}

	findings := s.engine.Classifier.Classify(obs)
	bmi, band := service.ObservationBMI(obs)
	c.JSON(http.StatusOK, ClassifyResponse{
		Findings:    findings.Sorted(),
		MaxSeverity: findings.MaxSeverity(),
		BMI:         bmi,
		BMIBand:     band,
	})
}

func (s *Server) handleBMI(c *gin.Context) {
	var req bmiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	value, ok := service.BMI(req.WeightKg, req.HeightCm)
	if !ok {
		s.respondError(c, domain.NewValidationError("weightKg/heightCm", "positive weight and height are required", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"bmi": value, "band": service.ClassifyBMI(value)})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	key := c.Param("key")
	c.JSON(http.StatusOK, gin.H{
		"key":   key,
		"items": s.engine.Recommender.Recommend(key),
	})
}

func (s *Server) handleCatalogSearch(c *gin.Context) {
	results := s.engine.SearchCatalog(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) handleProtocol(c *gin.Context) {
	graph := s.engine.Navigator.Graph()
	c.JSON(http.StatusOK, gin.H{
		"protocol":        s.engine.Protocol,
		"startId":         graph.StartID,
		"nodes":           len(graph.Nodes),
		"recommendations": s.engine.Recommender.Keys(),
		"catalogEntries":  len(s.engine.Catalog),
	})
}

func (s *Server) handleProtocolNode(c *gin.Context) {
	node, ok := s.engine.Navigator.Graph().Node(c.Param("id"))
	if !ok {
		s.respondError(c, domain.ErrUnknownNode)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
	}
	view, err := s.sessions.Create(c.Request.Context(), req.PatientRef)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSession(c *gin.Context) {
	s.respondView(c)(s.sessions.Get(c.Request.Context(), c.Param("id")))
}

func (s *Server) handleDiscardSession(c *gin.Context) {
	if err := s.sessions.Discard(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetObservation(c *gin.Context) {
	var obs domain.Observation
	if err := c.ShouldBindJSON(&obs); err != nil {
		badRequest(c, "invalid observation", err)
		return
	}
	s.respondView(c)(s.sessions.SetObservation(c.Request.Context(), c.Param("id"), obs))
}

func (s *Server) handleCurrentNode(c *gin.Context) {
	view, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.CurrentNode)
}

func (s *Server) handleAdvance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	ctx, id := c.Request.Context(), c.Param("id")
	switch {
	case req.Option != nil:
		s.respondView(c)(s.sessions.Advance(ctx, id, *req.Option))
	case req.Label != "":
		s.respondView(c)(s.sessions.AdvanceByLabel(ctx, id, req.Label))
	default:
		badRequest(c, "either option or label is required", nil)
	}
}

func (s *Server) handleReset(c *gin.Context) {
	s.respondView(c)(s.sessions.Reset(c.Request.Context(), c.Param("id")))
}

func (s *Server) handleBreadcrumb(c *gin.Context) {
	nodes, err := s.sessions.Breadcrumb(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (s *Server) handleAddRecommendation(c *gin.Context) {
	var req recommendationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
	}
	s.respondView(c)(s.sessions.AddRecommendation(c.Request.Context(), c.Param("id"), req.Key))
}

func (s *Server) handleAddFindingRecommendations(c *gin.Context) {
	s.respondView(c)(s.sessions.AddFindingRecommendations(c.Request.Context(), c.Param("id")))
}

func (s *Server) handleAddFromCatalog(c *gin.Context) {
	var req catalogRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TradeName == "" {
		badRequest(c, "tradeName is required", err)
		return
	}
	s.respondView(c)(s.sessions.AddFromCatalog(c.Request.Context(), c.Param("id"), req.TradeName))
}

func (s *Server) handleUpdateLine(c *gin.Context) {
	index, ok := lineIndex(c)
	if !ok {
		return
	}
	var update session.LineUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "invalid line update", err)
		return
	}
	s.respondView(c)(s.sessions.UpdateLine(c.Request.Context(), c.Param("id"), index, update))
}

func (s *Server) handleRemoveLine(c *gin.Context) {
	index, ok := lineIndex(c)
	if !ok {
		return
	}
	s.respondView(c)(s.sessions.RemoveLine(c.Request.Context(), c.Param("id"), index))
}

func (s *Server) handleSetNotes(c *gin.Context) {
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	s.respondView(c)(s.sessions.SetNotes(c.Request.Context(), c.Param("id"), req.Notes))
}

func (s *Server) handleGetPrescription(c *gin.Context) {
	view, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Prescription)
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.sessions.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleFinalize(c *gin.Context) {
	record, err := s.sessions.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleGetRecord(c *gin.Context) {
	record, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleListPrescriptions lists records of one session, or pages through all
// records newest first.
func (s *Server) handleListPrescriptions(c *gin.Context) {
	ctx := c.Request.Context()

	if sessionID := c.Query("session"); sessionID != "" {
		records, err := s.store.ListBySession(ctx, sessionID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		badRequest(c, "limit must be between 1 and 500", nil)
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "offset must be a non-negative integer", nil)
		return
	}

	records, err := s.store.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records), "total": total})
}

// respondView writes a session view or the error that replaced it.
func (s *Server) respondView(c *gin.Context) func(*session.View, error) {
	return func(view *session.View, err error) {
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func lineIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "line index must be an integer", err)
		return 0, false
	}
	return index, true
}
