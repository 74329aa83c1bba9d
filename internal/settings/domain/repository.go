package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB) (*Settings, error)
	Create(ctx context.Context, db *gorm.DB, settings *Settings) error
	Update(ctx context.Context, db *gorm.DB, settings *Settings) error
}
