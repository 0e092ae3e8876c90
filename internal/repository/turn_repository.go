package repository

import (
	"fmt"

	"gorm.io/gorm"

	"natural-alert/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(turn *model.ArchivedTurn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create archived turn failed: %w", err)
	}
	return nil
}

func (r *TurnRepository) ListBySessionID(sessionID string, limit int) ([]model.ArchivedTurn, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var turns []model.ArchivedTurn
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC").Limit(limit).Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list archived turns failed: %w", err)
	}
	return turns, nil
}
