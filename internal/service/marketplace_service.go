// Package service contains the business logic between the HTTP handlers
// and the repositories.
package service

import (
	"context"
	"math"
	"mime/multipart"
	"strings"

	"campusmarket/internal/cache"
	"campusmarket/internal/middleware"
	"campusmarket/internal/models"
	"campusmarket/internal/observability"
	"campusmarket/internal/repository"
	"campusmarket/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type MarketplaceService struct {
	listingRepo repository.ListingRepository
	db          *gorm.DB
	store       *storage.Store
}

type CreateListingInput struct {
	SellerID    uint
	Title       string
	Description string
	Price       float64
	Category    string
	Condition   string
	Images      []*multipart.FileHeader
}

type UpdateListingInput struct {
	UserID      uint
	ListingID   uint
	Title       *string
	Description *string
	Price       *float64
	Category    *string
	Condition   *string
	// Images, when non-empty, replaces the listing's image set wholesale.
	Images []*multipart.FileHeader
}

// ListingPage is one page of listings together with pagination totals.
type ListingPage struct {
	Listings    []*models.Listing
	Total       int64
	Pages       int
	CurrentPage int
}

func NewMarketplaceService(listingRepo repository.ListingRepository, db *gorm.DB, store *storage.Store) *MarketplaceService {
	return &MarketplaceService{
		listingRepo: listingRepo,
		db:          db,
		store:       store,
	}
}

func (s *MarketplaceService) ListListings(ctx context.Context, filter repository.ListingFilter) (*ListingPage, error) {
	listings, total, err := s.listingRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 10
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	return &ListingPage{
		Listings:    listings,
		Total:       total,
		Pages:       int(math.Ceil(float64(total) / float64(perPage))),
		CurrentPage: page,
	}, nil
}

// GetListing delegates to the repository, which reads through the Redis
// cache. Mutations below invalidate the key.
func (s *MarketplaceService) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	return s.listingRepo.GetByID(ctx, id)
}

func (s *MarketplaceService) CreateListing(ctx context.Context, in CreateListingInput) (*models.Listing, error) {
	span, ctx := observability.NewSpan(ctx, "MarketplaceService.CreateListing")
	defer span.End()
	span.AddAttributes(
		attribute.Int("seller.id", int(in.SellerID)),
		attribute.Int("listing.image_count", len(in.Images)),
	)

	if err := validateListingFields(in.Title, in.Description, in.Category, in.Condition, in.Price); err != nil {
		return nil, err
	}
	if len(in.Images) == 0 {
		return nil, models.NewValidationError("At least one image is required")
	}
	for _, fh := range in.Images {
		if !s.store.Allowed(fh.Filename) {
			return nil, models.NewValidationError("File type not allowed: " + fh.Filename)
		}
	}

	urls, err := s.saveImages(in.Images)
	if err != nil {
		middleware.ListingOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	listing := &models.Listing{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Condition:   in.Condition,
		SellerID:    in.SellerID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		for _, u := range urls {
			if err := tx.Create(&models.ListingImage{ListingID: listing.ID, URL: u}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// roll the files back with the transaction
		s.removeFiles(ctx, urls)
		span.SetError(err)
		middleware.ListingOperations.WithLabelValues("create", "error").Inc()
		return nil, models.NewInternalError(err)
	}

	span.AddAttributes(attribute.Int("listing.id", int(listing.ID)))
	middleware.ListingOperations.WithLabelValues("create", "success").Inc()
	return s.listingRepo.GetByID(ctx, listing.ID)
}

func (s *MarketplaceService) UpdateListing(ctx context.Context, in UpdateListingInput) (*models.Listing, error) {
	span, ctx := observability.NewSpan(ctx, "MarketplaceService.UpdateListing")
	defer span.End()
	span.AddAttributes(attribute.Int("listing.id", int(in.ListingID)))

	listing, err := s.listingRepo.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != in.UserID {
		return nil, models.NewForbiddenError("You can only update your own listings")
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, models.NewValidationError("Title cannot be empty")
		}
		listing.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		listing.Description = *in.Description
	}
	if in.Price != nil {
		if *in.Price <= 0 {
			return nil, models.NewValidationError("Price must be greater than 0")
		}
		listing.Price = *in.Price
	}
	if in.Category != nil {
		listing.Category = *in.Category
	}
	if in.Condition != nil {
		listing.Condition = *in.Condition
	}

	var newURLs []string
	oldURLs := listing.ImageURLs()
	if len(in.Images) > 0 {
		for _, fh := range in.Images {
			if !s.store.Allowed(fh.Filename) {
				return nil, models.NewValidationError("File type not allowed: " + fh.Filename)
			}
		}
		newURLs, err = s.saveImages(in.Images)
		if err != nil {
			middleware.ListingOperations.WithLabelValues("update", "error").Inc()
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(newURLs) > 0 {
			if err := tx.Where("listing_id = ?", listing.ID).Delete(&models.ListingImage{}).Error; err != nil {
				return err
			}
			for _, u := range newURLs {
				if err := tx.Create(&models.ListingImage{ListingID: listing.ID, URL: u}).Error; err != nil {
					return err
				}
			}
		}
		return tx.Omit("Seller", "Images").Save(listing).Error
	})
	if err != nil {
		s.removeFiles(ctx, newURLs)
		span.SetError(err)
		middleware.ListingOperations.WithLabelValues("update", "error").Inc()
		return nil, models.NewInternalError(err)
	}

	if len(newURLs) > 0 {
		// old files are orphaned once the new rows are committed
		s.removeFiles(ctx, oldURLs)
	}
	cache.InvalidateListing(ctx, listing.ID)

	middleware.ListingOperations.WithLabelValues("update", "success").Inc()
	return s.listingRepo.GetByID(ctx, listing.ID)
}

func (s *MarketplaceService) DeleteListing(ctx context.Context, userID, listingID uint) error {
	span, ctx := observability.NewSpan(ctx, "MarketplaceService.DeleteListing")
	defer span.End()
	span.AddAttributes(attribute.Int("listing.id", int(listingID)))

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.SellerID != userID {
		return models.NewForbiddenError("You can only delete your own listings")
	}

	urls := listing.ImageURLs()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", listing.ID).Delete(&models.ListingImage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Listing{}, listing.ID).Error
	})
	if err != nil {
		span.SetError(err)
		middleware.ListingOperations.WithLabelValues("delete", "error").Inc()
		return models.NewInternalError(err)
	}

	s.removeFiles(ctx, urls)
	cache.InvalidateListing(ctx, listing.ID)

	middleware.ListingOperations.WithLabelValues("delete", "success").Inc()
	return nil
}

// saveImages writes all uploads to disk, cleaning up already written files
// when a later one fails.
func (s *MarketplaceService) saveImages(files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		u, err := s.store.Save(fh)
		if err != nil {
			for _, written := range urls {
				_ = s.store.Remove(written)
			}
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// removeFiles deletes stored files best effort. Failures are logged, never
// surfaced, since the database is already consistent at this point.
func (s *MarketplaceService) removeFiles(ctx context.Context, urls []string) {
	for _, u := range urls {
		if err := s.store.Remove(u); err != nil {
			observability.RecordErrorInContext(ctx, err)
			middleware.Logger.WarnContext(ctx, "failed to remove listing image file",
				"url", u,
				"error", err,
			)
		}
	}
}

func validateListingFields(title, description, category, condition string, price float64) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("Title is required")
	}
	if strings.TrimSpace(description) == "" {
		return models.NewValidationError("Description is required")
	}
	if strings.TrimSpace(category) == "" {
		return models.NewValidationError("Category is required")
	}
	if strings.TrimSpace(condition) == "" {
		return models.NewValidationError("Condition is required")
	}
	if price <= 0 {
		return models.NewValidationError("Price must be greater than 0")
	}
	return nil
}
