package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLoanNotFound is returned when a media ID has no loan record.
var ErrLoanNotFound = errors.New("loan not found")

// UpsertLoan creates or updates a loan record keyed by media ID.
func (d *Database) UpsertLoan(loan *Loan) error {
	err := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "media_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "author", "odm_path", "directory", "updated_at",
		}),
	}).Create(loan).Error
	if err != nil {
		return fmt.Errorf("failed to upsert loan: %w", err)
	}
	return nil
}

// RecordPart records a completed part download for a loan.
func (d *Database) RecordPart(mediaID string, number int, fileName string, size int64) error {
	part := &PartDownload{
		MediaID:      mediaID,
		Number:       number,
		FileName:     fileName,
		Size:         size,
		DownloadedAt: time.Now(),
	}
	err := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "media_id"}, {Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name", "size", "downloaded_at",
		}),
	}).Create(part).Error
	if err != nil {
		return fmt.Errorf("failed to record part download: %w", err)
	}
	return nil
}

// MarkDownloaded marks a loan fully downloaded.
func (d *Database) MarkDownloaded(mediaID string) error {
	now := time.Now()
	return d.setStatus(mediaID, map[string]interface{}{
		"status":        StatusDownloaded,
		"downloaded_at": &now,
		"updated_at":    now,
	})
}

// MarkReturned marks a loan returned.
func (d *Database) MarkReturned(mediaID string) error {
	now := time.Now()
	return d.setStatus(mediaID, map[string]interface{}{
		"status":      StatusReturned,
		"returned_at": &now,
		"updated_at":  now,
	})
}

func (d *Database) setStatus(mediaID string, updates map[string]interface{}) error {
	result := d.db.Model(&Loan{}).Where("media_id = ?", mediaID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update loan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// GetLoan returns the loan for a media ID, with its recorded parts.
func (d *Database) GetLoan(mediaID string) (*Loan, error) {
	var loan Loan
	err := d.db.Preload("Parts").First(&loan, "media_id = ?", mediaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return &loan, nil
}

// ListLoans returns all loans, newest first.
func (d *Database) ListLoans() ([]Loan, error) {
	var loans []Loan
	if err := d.db.Order("created_at DESC").Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}
