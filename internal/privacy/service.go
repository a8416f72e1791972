// Package privacy keeps client data in the audit log to a minimum: client
// addresses are hashed before storage and old predictions are pruned.
package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/database"
)

// AnonymizeIP returns a stable, non-reversible token for ip. An empty ip
// stays empty.
func AnonymizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}

// Service prunes the audit log on a schedule
type Service struct {
	repo          *database.Repository
	retentionDays int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewService creates a privacy service; retentionDays <= 0 keeps records
// forever
func NewService(repo *database.Repository, retentionDays int) *Service {
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// GetDataRetentionInfo describes what the service stores and for how long
func (s *Service) GetDataRetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"prediction_retention_days": s.retentionDays,
		"retention_enforced":        s.retentionDays > 0,
		"ip_anonymization_method":   "SHA-256 (truncated)",
		"stored_fields": []string{
			"feature values", "failure probability", "risk level",
			"risk factors", "positive signals", "model version", "client token",
		},
	}
}

// Cleanup deletes predictions older than the retention window
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	slog.Info("Audit cleanup completed", "cutoff_date", cutoff.Format(time.RFC3339), "predictions_deleted", deleted)
	return deleted, nil
}

// Start runs Cleanup now and then every interval until Stop or ctx is done
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if s.retentionDays <= 0 {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := s.Cleanup(ctx); err != nil {
				slog.Error("Failed to clean up audit log", "error", err)
			}

			select {
			case <-ticker.C:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the schedule and waits for a running cleanup to finish. Start
// must have been called.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
