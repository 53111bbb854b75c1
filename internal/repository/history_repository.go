package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"askthedocs/internal/model"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(rec *model.HistoryRecord) error {
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("create history record failed: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListBySessionID(sessionID string) ([]model.HistoryRecord, error) {
	var recs []model.HistoryRecord
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at asc, id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list history records failed: %w", err)
	}
	return recs, nil
}

func (r *HistoryRepository) DeleteBySessionID(sessionID string) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.HistoryRecord{}).Error; err != nil {
		return fmt.Errorf("delete history records failed: %w", err)
	}
	return nil
}

// SyncHistoryPublisher archives records directly, used when no broker is
// configured.
type SyncHistoryPublisher struct {
	repo *HistoryRepository
}

func NewSyncHistoryPublisher(repo *HistoryRepository) *SyncHistoryPublisher {
	return &SyncHistoryPublisher{repo: repo}
}

func (p *SyncHistoryPublisher) Publish(_ context.Context, rec model.HistoryRecord) error {
	return p.repo.Create(&rec)
}
