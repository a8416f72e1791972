package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
)

// DefaultQueueSize bounds pending audit writes
const DefaultQueueSize = 1024

// AuditService writes prediction records in the background so that
// scoring responses never wait on sqlite.
type AuditService struct {
	repo    *Repository
	metrics *monitoring.Metrics
	queue   chan *PredictionRecord
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAuditService(repo *Repository, metrics *monitoring.Metrics, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	s := &AuditService{
		repo:    repo,
		metrics: metrics,
		queue:   make(chan *PredictionRecord, queueSize),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Record enqueues p for persistence and returns the record id. The id is
// returned even when the queue is full and the record is dropped.
func (s *AuditService) Record(source, ip string, fv scoring.FeatureVector, p *scoring.Prediction) string {
	rec := NewPredictionRecord(source, ip, fv, p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return rec.ID
	}

	select {
	case s.queue <- rec:
	default:
		slog.Warn("Audit queue full, dropping record", "id", rec.ID, "source", source)
		s.recordWrite(false)
	}

	return rec.ID
}

func (s *AuditService) Repository() *Repository {
	return s.repo
}

func (s *AuditService) run() {
	defer s.wg.Done()

	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.repo.SavePrediction(ctx, rec)
		cancel()

		if err != nil {
			slog.Error("Failed to write audit record", "id", rec.ID, "error", err)
		}
		s.recordWrite(err == nil)
	}
}

func (s *AuditService) recordWrite(ok bool) {
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(ok)
	}
}

// Close stops accepting records and waits for queued ones to be written
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}
