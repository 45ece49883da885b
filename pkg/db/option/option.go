package option

import (
	"adcampaign-controlplane/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption narrows or decorates a gorm query.
type QueryOption func(*gorm.DB) *gorm.DB

func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

func WithWhere(query any, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	}
}

func ByID(id int64) QueryOption {
	return WithWhere("id = ?", id)
}

func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

// ApplyPagination pages by descending id. One extra row is fetched so the
// caller can tell whether another page exists. A malformed cursor fails the
// query instead of restarting from the first page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		limit := p.Normalize().Limit
		after, err := p.AfterID()
		if err != nil {
			tx := db.Limit(limit + 1)
			_ = tx.AddError(err)
			return tx
		}
		if after > 0 {
			db = db.Where("id < ?", after)
		}
		return db.Order("id DESC").Limit(limit + 1)
	}
}
