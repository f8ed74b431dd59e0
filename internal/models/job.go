package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisJob is one queued unit of AI-analysis work for a paper.
// State changes go through the repository's transition methods only.
type AnalysisJob struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)"`
	PaperID         string         `gorm:"type:varchar(255);not null;index"`
	OwnerID         string         `gorm:"type:varchar(255);not null;index"`
	Providers       datatypes.JSON `gorm:"not null"`
	Priority        int            `gorm:"not null;default:0"`
	Status          string         `gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempts        int            `gorm:"not null;default:0"`
	MaxAttempts     int            `gorm:"not null;default:3"`
	Progress        int            `gorm:"not null;default:0"`
	Result          datatypes.JSON
	Error           string `gorm:"type:text;not null;default:''"`
	ErrorKind       string `gorm:"type:varchar(20);not null;default:''"`
	CancelRequested bool   `gorm:"not null;default:false"`
	AvailableAt     time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
