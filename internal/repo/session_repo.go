package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ADDICT-HUB/X-guru-pair/internal/domain"
)

// InsertSessionMeta persists the metadata record for a request that just
// reached readiness. Rows are write-once: a conflicting insert (same session
// or request id) is silently ignored, which keeps the operation idempotent
// when a duplicate readiness signal slips through.
func InsertSessionMeta(ctx context.Context, db *gorm.DB, meta *domain.SessionMeta) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(meta).Error
}

// CountSessionMeta returns the number of persisted session records.
func CountSessionMeta(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.SessionMeta{}).Count(&n).Error
	return n, err
}

// ListSessionMetaPage returns a page of session records, newest readiness
// first.
func ListSessionMetaPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.SessionMeta, error) {
	var out []domain.SessionMeta
	err := db.WithContext(ctx).
		Order("ready_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
