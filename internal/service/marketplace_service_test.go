package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"testing"

	"campusmarket/internal/models"
	"campusmarket/internal/repository"
	"campusmarket/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMarketplaceTest(t *testing.T) (*MarketplaceService, *gorm.DB, *storage.Store, *models.User) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Listing{}, &models.ListingImage{}))

	store := storage.NewStore(t.TempDir())
	svc := NewMarketplaceService(repository.NewListingRepository(db), db, store)

	seller := &models.User{Username: "seller", Email: "seller@example.com", Password: "hash", Role: models.RoleStudent}
	require.NoError(t, db.Create(seller).Error)

	return svc, db, store, seller
}

func imageUpload(t *testing.T, filename string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("images", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("image-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["images"][0]
}

func validCreateInput(t *testing.T, sellerID uint) CreateListingInput {
	return CreateListingInput{
		SellerID:    sellerID,
		Title:       "Mountain Bike",
		Description: "Barely used",
		Price:       120.50,
		Category:    "sports",
		Condition:   "good",
		Images:      []*multipart.FileHeader{imageUpload(t, "bike.jpg")},
	}
}

func TestCreateListing(t *testing.T) {
	svc, db, store, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	listing, err := svc.CreateListing(ctx, validCreateInput(t, seller.ID))
	require.NoError(t, err)

	assert.Equal(t, "Mountain Bike", listing.Title)
	assert.Equal(t, seller.ID, listing.SellerID)
	assert.Equal(t, "seller", listing.Seller.Username)
	require.Len(t, listing.Images, 1)

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	var count int64
	db.Model(&models.ListingImage{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateListing_Validation(t *testing.T) {
	svc, db, store, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateListingInput)
	}{
		{"Missing Title", func(in *CreateListingInput) { in.Title = "" }},
		{"Missing Description", func(in *CreateListingInput) { in.Description = "" }},
		{"Missing Category", func(in *CreateListingInput) { in.Category = "" }},
		{"Missing Condition", func(in *CreateListingInput) { in.Condition = "" }},
		{"Zero Price", func(in *CreateListingInput) { in.Price = 0 }},
		{"Negative Price", func(in *CreateListingInput) { in.Price = -3 }},
		{"No Images", func(in *CreateListingInput) { in.Images = nil }},
		{"Disallowed Extension", func(in *CreateListingInput) {
			in.Images = []*multipart.FileHeader{imageUpload(t, "malware.exe")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCreateInput(t, seller.ID)
			tt.mutate(&in)

			_, err := svc.CreateListing(ctx, in)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
		})
	}

	// nothing may survive a rejected create
	var count int64
	db.Model(&models.Listing{}).Count(&count)
	assert.Zero(t, count)
	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateListing(t *testing.T) {
	svc, _, store, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	created, err := svc.CreateListing(ctx, validCreateInput(t, seller.ID))
	require.NoError(t, err)
	originalImage := created.FirstImageURL()

	t.Run("Partial Update Keeps Images", func(t *testing.T) {
		newPrice := 99.99
		updated, err := svc.UpdateListing(ctx, UpdateListingInput{
			UserID:    seller.ID,
			ListingID: created.ID,
			Price:     &newPrice,
		})
		require.NoError(t, err)
		assert.Equal(t, 99.99, updated.Price)
		assert.Equal(t, "Mountain Bike", updated.Title)
		assert.Equal(t, []string{originalImage}, updated.ImageURLs())
	})

	t.Run("Image Replacement Is Wholesale", func(t *testing.T) {
		updated, err := svc.UpdateListing(ctx, UpdateListingInput{
			UserID:    seller.ID,
			ListingID: created.ID,
			Images: []*multipart.FileHeader{
				imageUpload(t, "front.png"),
				imageUpload(t, "back.png"),
			},
		})
		require.NoError(t, err)
		require.Len(t, updated.Images, 2)
		assert.NotContains(t, updated.ImageURLs(), originalImage)

		// replaced files are gone from disk, only the two new ones remain
		entries, err := os.ReadDir(store.Root())
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("Empty Title Rejected", func(t *testing.T) {
		empty := "  "
		_, err := svc.UpdateListing(ctx, UpdateListingInput{
			UserID:    seller.ID,
			ListingID: created.ID,
			Title:     &empty,
		})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	})
}

func TestUpdateListing_NotOwner(t *testing.T) {
	svc, db, _, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	other := &models.User{Username: "other", Email: "other@example.com", Password: "hash"}
	require.NoError(t, db.Create(other).Error)

	created, err := svc.CreateListing(ctx, validCreateInput(t, seller.ID))
	require.NoError(t, err)

	title := "Hijacked"
	_, err = svc.UpdateListing(ctx, UpdateListingInput{
		UserID:    other.ID,
		ListingID: created.ID,
		Title:     &title,
	})

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestDeleteListing(t *testing.T) {
	svc, db, store, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	created, err := svc.CreateListing(ctx, validCreateInput(t, seller.ID))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteListing(ctx, seller.ID, created.ID))

	var listingCount, imageCount int64
	db.Model(&models.Listing{}).Count(&listingCount)
	db.Model(&models.ListingImage{}).Count(&imageCount)
	assert.Zero(t, listingCount)
	assert.Zero(t, imageCount)

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = svc.DeleteListing(ctx, seller.ID, created.ID)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestDeleteListing_NotOwner(t *testing.T) {
	svc, db, _, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	other := &models.User{Username: "other", Email: "other@example.com", Password: "hash"}
	require.NoError(t, db.Create(other).Error)

	created, err := svc.CreateListing(ctx, validCreateInput(t, seller.ID))
	require.NoError(t, err)

	err = svc.DeleteListing(ctx, other.ID, created.ID)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	// still there
	_, err = svc.GetListing(ctx, created.ID)
	assert.NoError(t, err)
}

func TestListListings_Pagination(t *testing.T) {
	svc, _, _, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		in := validCreateInput(t, seller.ID)
		in.Title = fmt.Sprintf("Item %d", i)
		_, err := svc.CreateListing(ctx, in)
		require.NoError(t, err)
	}

	page, err := svc.ListListings(ctx, repository.ListingFilter{Page: 2, PerPage: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Len(t, page.Listings, 2)
}

func TestListListings_Filters(t *testing.T) {
	svc, _, _, seller := setupMarketplaceTest(t)
	ctx := context.Background()

	mk := func(title, category, condition string, price float64) {
		in := validCreateInput(t, seller.ID)
		in.Title = title
		in.Category = category
		in.Condition = condition
		in.Price = price
		_, err := svc.CreateListing(ctx, in)
		require.NoError(t, err)
	}
	mk("Calculus Textbook", "books", "good", 30)
	mk("Road Bike", "sports", "fair", 150)
	mk("Desk Lamp", "furniture", "new", 15)

	t.Run("By Category", func(t *testing.T) {
		page, err := svc.ListListings(ctx, repository.ListingFilter{Category: "books", Page: 1, PerPage: 10})
		require.NoError(t, err)
		require.Len(t, page.Listings, 1)
		assert.Equal(t, "Calculus Textbook", page.Listings[0].Title)
	})

	t.Run("By Price Range", func(t *testing.T) {
		minP, maxP := 20.0, 100.0
		page, err := svc.ListListings(ctx, repository.ListingFilter{MinPrice: &minP, MaxPrice: &maxP, Page: 1, PerPage: 10})
		require.NoError(t, err)
		require.Len(t, page.Listings, 1)
		assert.Equal(t, "Calculus Textbook", page.Listings[0].Title)
	})

	t.Run("Search Is Case Insensitive", func(t *testing.T) {
		page, err := svc.ListListings(ctx, repository.ListingFilter{Search: "BIKE", Page: 1, PerPage: 10})
		require.NoError(t, err)
		require.Len(t, page.Listings, 1)
		assert.Equal(t, "Road Bike", page.Listings[0].Title)
	})

	t.Run("No Match", func(t *testing.T) {
		page, err := svc.ListListings(ctx, repository.ListingFilter{Search: "spaceship", Page: 1, PerPage: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Listings)
		assert.Zero(t, page.Total)
		assert.Zero(t, page.Pages)
	})
}

func TestGetListing_NotFound(t *testing.T) {
	svc, _, _, _ := setupMarketplaceTest(t)

	_, err := svc.GetListing(context.Background(), 999)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
