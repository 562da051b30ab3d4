package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Johanhagos/mijn-api/internal/provisioning/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Enqueue(ctx context.Context, job *domain.Job) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).
		Create(job)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindBySessionID(ctx context.Context, sessionID string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.JobPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *repo) Claim(ctx context.Context, id int64, now, leaseUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE provisioning_jobs SET next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND next_attempt_at <= ?`,
		leaseUntil,
		now,
		id,
		domain.JobPending,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) HoldKey(ctx context.Context, id int64, keyID, sealed string, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE provisioning_jobs SET pending_key_id = ?, sealed_api_key = ?, updated_at = ? WHERE id = ?`,
		keyID,
		sealed,
		now,
		id,
	).Error
}

func (r *repo) MarkDone(ctx context.Context, id int64, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE provisioning_jobs
		 SET status = ?, last_error = '', pending_key_id = '', sealed_api_key = '', updated_at = ?
		 WHERE id = ?`,
		domain.JobDone,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, id int64, update domain.FailureUpdate) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE provisioning_jobs
		 SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		update.Status,
		update.Attempts,
		update.NextAttemptAt,
		update.LastError,
		update.UpdatedAt,
		id,
		domain.JobPending,
	).Error
}
