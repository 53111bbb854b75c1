package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"askthedocs/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(rec *model.SessionRecord) error {
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("create session record failed: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the record does not exist.
func (r *SessionRepository) GetByID(id string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	err := r.db.Where("id = ?", id).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session record failed: %w", err)
	}
	return &rec, nil
}

// ListExpired returns every record whose expiry lies before the given time.
func (r *SessionRepository) ListExpired(before time.Time) ([]model.SessionRecord, error) {
	var recs []model.SessionRecord
	if err := r.db.Where("expires_at < ?", before).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list expired sessions failed: %w", err)
	}
	return recs, nil
}

func (r *SessionRepository) DeleteByID(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.SessionRecord{}).Error; err != nil {
		return fmt.Errorf("delete session record failed: %w", err)
	}
	return nil
}
