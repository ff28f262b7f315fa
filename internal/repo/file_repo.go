// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the FileEntry
// model.
//
// The repository follows a "thin" approach: identifier generation, relaying
// and ownership policy live in services.RegistryService.
//
// Error semantics:
//   - A primary-key collision on insert is returned as ErrDuplicate so the
//     caller can regenerate the identifier instead of overwriting.
//   - When a file is not found, functions return ErrNotFound.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// CreateFile inserts e. CreatedAt is set to UTC now when zero.
// Returns ErrDuplicate when e.ID is already taken.
func CreateFile(ctx context.Context, db *gorm.DB, e *domain.FileEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetFile fetches a single entry by id, or ErrNotFound.
func GetFile(ctx context.Context, db *gorm.DB, id string) (*domain.FileEntry, error) {
	var f domain.FileEntry
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFilesByOwner returns every entry owned by ownerID, oldest first.
func ListFilesByOwner(ctx context.Context, db *gorm.DB, ownerID int64) ([]domain.FileEntry, error) {
	var out []domain.FileEntry
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ListFilesPage returns up to limit entries owned by ownerID after skipping
// offset, oldest first.
func ListFilesPage(ctx context.Context, db *gorm.DB, ownerID int64, offset, limit int) ([]domain.FileEntry, error) {
	var out []domain.FileEntry
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// EachFileByOwner streams the entries owned by ownerID row by row, oldest
// first, calling fn for each. Iteration stops early when fn returns false.
// The cursor is always closed before EachFileByOwner returns.
func EachFileByOwner(ctx context.Context, db *gorm.DB, ownerID int64, fn func(domain.FileEntry) bool) error {
	tx := db.WithContext(ctx).
		Model(&domain.FileEntry{}).
		Where("owner_id = ?", ownerID).
		Order("created_at asc, id asc")
	rows, err := tx.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var f domain.FileEntry
		if err := tx.ScanRows(rows, &f); err != nil {
			return err
		}
		if !fn(f) {
			return nil
		}
	}
	return rows.Err()
}

// CountFilesByOwner returns the number of entries owned by ownerID.
func CountFilesByOwner(ctx context.Context, db *gorm.DB, ownerID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.FileEntry{}).
		Where("owner_id = ?", ownerID).
		Count(&total).Error
	return total, err
}

// DeleteFile removes the entry id when it is owned by ownerID. If no rows are
// affected (missing or owned by someone else) it returns ErrNotFound.
func DeleteFile(ctx context.Context, db *gorm.DB, id string, ownerID int64) error {
	res := db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&domain.FileEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
