package repository

import (
	"context"

	"github.com/smallbiznis/quicksearch/internal/settings/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB) (*domain.Settings, error) {
	var s domain.Settings
	err := db.WithContext(ctx).Raw(
		`SELECT id, default_iva, default_iibb, default_profit, default_margin_multiplier, rounding_strategy, updated_at
		 FROM settings WHERE id = ?`,
		domain.SettingsID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, s *domain.Settings) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO settings (id, default_iva, default_iibb, default_profit, default_margin_multiplier, rounding_strategy, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		domain.SettingsID,
		s.DefaultIVA,
		s.DefaultIIBB,
		s.DefaultProfit,
		s.DefaultMarginMultiplier,
		s.RoundingStrategy,
		s.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, s *domain.Settings) error {
	return db.WithContext(ctx).Exec(
		`UPDATE settings
		 SET default_iva = ?, default_iibb = ?, default_profit = ?, default_margin_multiplier = ?, rounding_strategy = ?, updated_at = ?
		 WHERE id = ?`,
		s.DefaultIVA,
		s.DefaultIIBB,
		s.DefaultProfit,
		s.DefaultMarginMultiplier,
		s.RoundingStrategy,
		s.UpdatedAt,
		domain.SettingsID,
	).Error
}
