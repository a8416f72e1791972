package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a prediction id is unknown
var ErrNotFound = errors.New("prediction not found")

// MaxListLimit caps ListRecent
const MaxListLimit = 500

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SavePrediction inserts rec
func (r *Repository) SavePrediction(ctx context.Context, rec *PredictionRecord) error {
	stmt, err := r.db.GetPreparedStatement("insert_prediction")
	if err != nil {
		return err
	}

	risk, err := json.Marshal(rec.TopRiskFactors)
	if err != nil {
		return fmt.Errorf("failed to encode risk factors: %w", err)
	}
	positive, err := json.Marshal(rec.PositiveSignals)
	if err != nil {
		return fmt.Errorf("failed to encode positive signals: %w", err)
	}
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = stmt.ExecContext(ctx,
		rec.ID, rec.CreatedAt.UTC(), rec.ModelVersion, rec.Source, rec.FailureProbability, rec.RiskLevel,
		string(risk), string(positive), string(features), rec.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}

	return nil
}

// GetPrediction loads one record by id
func (r *Repository) GetPrediction(ctx context.Context, id string) (*PredictionRecord, error) {
	stmt, err := r.db.GetPreparedStatement("get_prediction")
	if err != nil {
		return nil, err
	}

	rec, err := scanPrediction(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	return rec, nil
}

// ListRecent returns up to limit records, newest first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*PredictionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	stmt, err := r.db.GetPreparedStatement("list_recent")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	records := make([]*PredictionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// TierCounts returns the number of audited predictions per risk level
func (r *Repository) TierCounts(ctx context.Context) (map[string]int64, error) {
	stmt, err := r.db.GetPreparedStatement("tier_counts")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tiers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var tier string
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		counts[tier] = n
	}

	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (*PredictionRecord, error) {
	var (
		rec                      PredictionRecord
		risk, positive, features string
		ip                       sql.NullString
	)

	err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.ModelVersion, &rec.Source, &rec.FailureProbability,
		&rec.RiskLevel, &risk, &positive, &features, &ip)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(risk), &rec.TopRiskFactors); err != nil {
		return nil, fmt.Errorf("corrupt top_risk_factors for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(positive), &rec.PositiveSignals); err != nil {
		return nil, fmt.Errorf("corrupt positive_signals for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return nil, fmt.Errorf("corrupt features for %s: %w", rec.ID, err)
	}
	rec.IPAddress = ip.String

	return &rec, nil
}

// DeleteBefore removes records created before cutoff and returns how many
// were deleted
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old predictions: %w", err)
	}
	return result.RowsAffected()
}
