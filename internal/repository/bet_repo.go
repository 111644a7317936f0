package repository

import (
	"context"

	"fanpoints/internal/model"

	"gorm.io/gorm"
)

type BetRepository struct {
	db *gorm.DB
}

func NewBetRepository(db *gorm.DB) *BetRepository {
	return &BetRepository{db: db}
}

func (r *BetRepository) Create(ctx context.Context, tx *gorm.DB, ticket *model.BetTicket) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(ticket).Error
}

func (r *BetRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.BetTicket, error) {
	var tickets []*model.BetTicket
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(ClampLimit(limit)).
		Find(&tickets).Error
	return tickets, err
}
