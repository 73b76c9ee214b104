package repository

import (
	"context"
	"errors"
	"strings"

	"campusmarket/internal/cache"
	"campusmarket/internal/models"

	"gorm.io/gorm"
)

// ListingFilter holds the browse filters and pagination for listing queries.
// Page is 1-indexed.
type ListingFilter struct {
	Category  string
	Condition string
	MinPrice  *float64
	MaxPrice  *float64
	Search    string
	Page      int
	PerPage   int
}

// ListingRepository defines persistence operations for listings.
type ListingRepository interface {
	List(ctx context.Context, filter ListingFilter) ([]*models.Listing, int64, error)
	GetByID(ctx context.Context, id uint) (*models.Listing, error)
}

type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository returns a new ListingRepository implementation.
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

// applyFilters adds the WHERE clauses for the given filter.
// Search matches a case-insensitive substring of title OR description;
// LOWER(...) LIKE is used instead of ILIKE so the same query runs on both
// PostgreSQL and the SQLite test driver.
func applyFilters(db *gorm.DB, filter ListingFilter) *gorm.DB {
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}
	if filter.Condition != "" {
		db = db.Where("condition = ?", filter.Condition)
	}
	if filter.MinPrice != nil {
		db = db.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		db = db.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		db = db.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	return db
}

func (r *listingRepository) List(ctx context.Context, filter ListingFilter) ([]*models.Listing, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 10
	}

	base := applyFilters(r.db.WithContext(ctx).Model(&models.Listing{}), filter)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var listings []*models.Listing
	err := applyFilters(r.db.WithContext(ctx), filter).
		Preload("Seller").
		Preload("Images").
		Order("created_at DESC").
		Limit(filter.PerPage).
		Offset((filter.Page - 1) * filter.PerPage).
		Find(&listings).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	return listings, total, nil
}

func (r *listingRepository) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	key := cache.ListingKey(id)

	err := cache.Aside(ctx, key, &listing, cache.ListingTTL, func() error {
		if err := r.db.WithContext(ctx).
			Preload("Seller").
			Preload("Images").
			First(&listing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Listing", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &listing, nil
}
