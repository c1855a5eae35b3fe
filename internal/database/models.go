package database

import (
	"time"
)

// Loan statuses
const (
	StatusActive     = "active"
	StatusDownloaded = "downloaded"
	StatusReturned   = "returned"
)

// Loan tracks a borrowed title through its lifecycle.
type Loan struct {
	MediaID   string `gorm:"primaryKey" json:"media_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	ODMPath   string `json:"odm_path"`
	Directory string `json:"directory"`
	Status    string `gorm:"default:active" json:"status"`

	DownloadedAt *time.Time `json:"downloaded_at"`
	ReturnedAt   *time.Time `json:"returned_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Parts []PartDownload `gorm:"foreignKey:MediaID;references:MediaID" json:"parts,omitempty"`
}

// PartDownload records one completed part download for a loan.
type PartDownload struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MediaID      string    `gorm:"index:idx_part_media,unique" json:"media_id"`
	Number       int       `gorm:"index:idx_part_media,unique" json:"number"`
	FileName     string    `json:"file_name"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloaded_at"`
}
