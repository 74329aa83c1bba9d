package domain

import "time"

// SettingsID is the primary key of the single settings row.
const SettingsID int64 = 1

type Settings struct {
	ID                      int64     `json:"-" gorm:"primaryKey;autoIncrement:false"`
	DefaultIVA              float64   `json:"default_iva" gorm:"column:default_iva;not null"`
	DefaultIIBB             float64   `json:"default_iibb" gorm:"column:default_iibb;not null"`
	DefaultProfit           float64   `json:"default_profit" gorm:"column:default_profit;not null"`
	DefaultMarginMultiplier float64   `json:"default_margin_multiplier" gorm:"column:default_margin_multiplier;not null"`
	RoundingStrategy        string    `json:"rounding_strategy" gorm:"type:varchar(32);not null"`
	UpdatedAt               time.Time `json:"updated_at" gorm:"not null"`
}

func (Settings) TableName() string { return "settings" }
