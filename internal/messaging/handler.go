// Package messaging exposes the scoring contract over NATS request/reply.
package messaging

import (
	"encoding/json"
	"time"

	apperrors "github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
)

// Auditor persists predictions. *database.AuditService satisfies it.
type Auditor interface {
	Record(source, ip string, fv scoring.FeatureVector, p *scoring.Prediction) string
}

// Reply is the body sent back to the requester. Exactly one of Prediction
// and Error is set.
type Reply struct {
	OK           bool                `json:"ok"`
	ID           string              `json:"id,omitempty"`
	ModelVersion string              `json:"model_version,omitempty"`
	Prediction   *scoring.Response   `json:"prediction,omitempty"`
	Error        *apperrors.Response `json:"error,omitempty"`
}

type Handler struct {
	scorer  *scoring.Scorer
	auditor Auditor
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
}

// NewHandler builds a handler; auditor, metrics and logger may be nil
func NewHandler(scorer *scoring.Scorer, auditor Auditor, metrics *monitoring.Metrics, logger *monitoring.Logger) *Handler {
	return &Handler{scorer: scorer, auditor: auditor, metrics: metrics, logger: logger}
}

// Handle scores one request body
func (h *Handler) Handle(data []byte) Reply {
	start := time.Now()

	raw, err := scoring.DecodeFeatureVector(data)
	if err != nil {
		return h.fail(err)
	}
	fv, err := h.scorer.Vector(raw)
	if err != nil {
		return h.fail(err)
	}

	p, err := h.scorer.Predict(fv)
	if err != nil {
		return h.fail(err)
	}

	reply := Reply{OK: true, ModelVersion: p.ModelVersion}
	resp := p.Response(false)
	reply.Prediction = &resp

	if h.auditor != nil {
		reply.ID = h.auditor.Record(sourceNATS, "", fv, p)
	}
	if h.metrics != nil {
		h.metrics.RecordPrediction(sourceNATS, string(p.Tier))
		h.metrics.RecordNatsRequest(true)
	}
	if h.logger != nil {
		h.logger.PredictionLogger(sourceNATS, p.ModelVersion, resp.FailureProbability, string(p.Tier), time.Since(start), false)
	}

	return reply
}

// HandleBytes is Handle with the reply encoded
func (h *Handler) HandleBytes(data []byte) []byte {
	out, err := json.Marshal(h.Handle(data))
	if err != nil {
		// Reply only holds marshalable types
		out, _ = json.Marshal(Reply{Error: ptr(apperrors.NewResponse(apperrors.NewInternalError("failed to encode reply", err)))})
	}
	return out
}

func (h *Handler) fail(err error) Reply {
	if h.metrics != nil {
		h.metrics.RecordNatsRequest(false)
		switch {
		case apperrors.IsSchemaMismatch(err):
			h.metrics.IncrementSchemaError()
		case apperrors.ToAppError(err).Category == apperrors.CategoryValidation:
			h.metrics.IncrementValidationError()
		}
	}
	resp := apperrors.NewResponse(err)
	return Reply{OK: false, Error: &resp}
}

func ptr[T any](v T) *T { return &v }
