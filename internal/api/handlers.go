package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/database"
	"github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/intake"
	"github.com/ZanzyTHEbar/runway/internal/privacy"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleHealth godoc
// @Summary      Service health
// @Description  Model identity and the state of optional backends
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	audit := "disabled"
	if s.audit != nil {
		audit = "enabled"
	}
	nats := "disabled"
	if s.nats != nil {
		nats = s.nats.Status()
	}

	m := s.scorer.Model()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"timestamp":      time.Now().Format(time.RFC3339),
		"version":        s.version,
		"uptime_seconds": time.Since(s.started).Seconds(),
		"model_version":  m.Version(),
		"feature_count":  m.Schema().Len(),
		"dependencies": gin.H{
			"redis": s.redis.Status(c.Request.Context()),
			"nats":  nats,
			"audit": audit,
		},
	})
}

// handleFeatures godoc
// @Summary      Required features
// @Description  Feature names in model order with their display labels
// @Tags         scoring
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /features [get]
func (s *Server) handleFeatures(c *gin.Context) {
	features := s.scorer.Features()
	c.JSON(http.StatusOK, gin.H{
		"required_features": features,
		"labels":            intake.Labels(features),
	})
}

// handleModel godoc
// @Summary      Model summary
// @Description  Version, bias and global coefficient importance
// @Tags         scoring
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /model [get]
func (s *Server) handleModel(c *gin.Context) {
	m := s.scorer.Model()
	c.JSON(http.StatusOK, gin.H{
		"version":       m.Version(),
		"bias":          m.Bias(),
		"feature_count": m.Schema().Len(),
		"importance":    s.scorer.Importance(),
	})
}

// handlePredict godoc
// @Summary      Score a feature vector
// @Description  Body maps every required feature to a number
// @Tags         scoring
// @Accept       json
// @Produce      json
// @Param        detail  query     bool  false  "include contributions and linear score"
// @Success      200     {object}  scoring.Response
// @Failure      400     {object}  errors.Response
// @Failure      413     {object}  errors.Response
// @Failure      429     {object}  errors.Response
// @Router       /predict [post]
func (s *Server) handlePredict(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, err)
		return
	}

	raw, err := scoring.DecodeFeatureVector(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	fv, err := s.scorer.Vector(raw)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.score(c, database.SourceHTTP, fv)
}

// handlePredictProfile godoc
// @Summary      Score a startup profile
// @Description  Derives the feature vector from form input, then scores it
// @Tags         scoring
// @Accept       json
// @Produce      json
// @Param        detail  query     bool            false  "include contributions and linear score"
// @Param        profile body      intake.Profile  true   "startup profile"
// @Success      200     {object}  scoring.Response
// @Failure      400     {object}  errors.Response
// @Router       /predict/profile [post]
func (s *Server) handlePredictProfile(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, err)
		return
	}

	var profile intake.Profile
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		s.fail(c, errors.NewValidationError("invalid startup profile", err.Error()))
		return
	}

	fv, err := profile.Vector()
	if err != nil {
		s.fail(c, err)
		return
	}

	s.score(c, database.SourceHTTPProfile, fv)
}

func (s *Server) score(c *gin.Context, source string, fv scoring.FeatureVector) {
	start := time.Now()

	p, err := s.scorer.Predict(fv)
	if err != nil {
		s.fail(c, err)
		return
	}

	var id string
	if s.audit != nil {
		id = s.audit.Record(source, privacy.AnonymizeIP(c.ClientIP()), fv, p)
	} else {
		id = uuid.NewString()
	}
	c.Header(PredictionIDHeader, id)

	detail, _ := strconv.ParseBool(c.Query("detail"))
	resp := p.Response(detail)

	s.metrics.RecordPrediction(source, string(p.Tier))
	s.logger.PredictionLogger(source, p.ModelVersion, resp.FailureProbability, string(p.Tier), time.Since(start), false)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.IsSchemaMismatch(err):
		s.metrics.IncrementSchemaError()
	case errors.ToAppError(err).Category == errors.CategoryValidation:
		s.metrics.IncrementValidationError()
	}
	errors.Respond(c, err)
}

// handleGetPrediction godoc
// @Summary      Audited prediction
// @Tags         audit
// @Produce      json
// @Param        id   path      string  true  "prediction id"
// @Success      200  {object}  database.PredictionRecord
// @Failure      404  {object}  errors.Response
// @Failure      503  {object}  errors.Response
// @Router       /predictions/{id} [get]
func (s *Server) handleGetPrediction(c *gin.Context) {
	if !s.requireAudit(c) {
		return
	}

	id := c.Param("id")
	rec, err := s.audit.Repository().GetPrediction(c.Request.Context(), id)
	if stderrors.Is(err, database.ErrNotFound) {
		errors.Respond(c, errors.NewNotFoundError("prediction", id))
		return
	}
	if err != nil {
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleListPredictions godoc
// @Summary      Recent predictions
// @Tags         audit
// @Produce      json
// @Param        limit  query     int  false  "max records (default 20, max 500)"
// @Success      200    {object}  map[string]interface{}
// @Failure      503    {object}  errors.Response
// @Router       /predictions [get]
func (s *Server) handleListPredictions(c *gin.Context) {
	if !s.requireAudit(c) {
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			errors.Respond(c, errors.NewValidationError("limit must be a positive integer", raw))
			return
		}
		limit = min(l, database.MaxListLimit)
	}

	records, err := s.audit.Repository().ListRecent(c.Request.Context(), limit)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions": records,
		"count":       len(records),
		"limit":       limit,
	})
}

// handlePredictionStats godoc
// @Summary      Audited predictions per risk level
// @Tags         audit
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  errors.Response
// @Router       /predictions/stats [get]
func (s *Server) handlePredictionStats(c *gin.Context) {
	if !s.requireAudit(c) {
		return
	}

	counts, err := s.audit.Repository().TierCounts(c.Request.Context())
	if err != nil {
		errors.Respond(c, err)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_tier":   counts,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) requireAudit(c *gin.Context) bool {
	if s.audit == nil {
		errors.Respond(c, errors.NewUnavailableError("prediction audit log"))
		return false
	}
	return true
}

// handlePrivacyPolicy godoc
// @Summary      Data retention policy
// @Description  What the audit log stores and how long it is kept
// @Tags         audit
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /privacy/policy [get]
func (s *Server) handlePrivacyPolicy(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusOK, gin.H{"audit": "disabled", "stored_fields": []string{}})
		return
	}
	if s.privacy == nil {
		c.JSON(http.StatusOK, privacy.NewService(nil, 0).GetDataRetentionInfo())
		return
	}
	c.JSON(http.StatusOK, s.privacy.GetDataRetentionInfo())
}
