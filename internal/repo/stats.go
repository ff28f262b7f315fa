package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// FileStats returns the number of entries owned by ownerID and the newest
// CreatedAt among them. latest is nil when the owner has no entries. The
// pair changes whenever the owner's listing does, which makes it usable as
// a weak validator.
func FileStats(ctx context.Context, db *gorm.DB, ownerID int64) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.FileEntry{}).Where("owner_id = ?", ownerID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX(): SQLite returns it as TEXT.
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
