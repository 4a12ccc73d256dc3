package models

import "gorm.io/gorm"

// WorkingCopy is the persisted form of one live graph in the canvas store.
// History is not persisted.
type WorkingCopy struct {
	gorm.Model
	VersionID  string                  `gorm:"uniqueIndex;not null"`
	StrategyID string                  `gorm:"index"`
	Graph      StrategyGraph           `gorm:"serializer:json"`
	Issues     []CanvasValidationIssue `gorm:"serializer:json"`
	Dirty      bool                    `gorm:"default:false"`
}

// CanvasSession records which strategy and version were active.
// There should only ever be one row in this table.
type CanvasSession struct {
	gorm.Model
	ActiveStrategyID string
	ActiveVersionID  string
}
