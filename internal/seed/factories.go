// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"campusmarket/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	fx   *fixtures
	r    *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	fx, err := loadFixtures()
	if err != nil {
		return nil, err
	}
	// seed gofakeit for richer content
	gofakeit.Seed(time.Now().UnixNano())
	//nolint:gosec // Weak random number generator is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Factory{db: db, opts: opts, fx: fx, r: r, nextID: 1000}, nil
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(100, 999))
	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@campus.edu", username),
		Role:     models.RoleStudent,
	}

	// Password handling: allow skipping bcrypt in dev fast mode
	if f.opts.SkipBcrypt {
		user.Password = "password123"
	} else {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		user.Password = string(hashedPassword)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s <%s>", user.Username, user.Email)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildListing constructs a listing struct for the given seller but does not
// persist it. Useful for batching.
func (f *Factory) BuildListing(seller *models.User, overrides ...func(*models.Listing)) *models.Listing {
	category := f.fx.Categories[f.r.Intn(len(f.fx.Categories))]
	title := category.Items[f.r.Intn(len(category.Items))]

	listing := &models.Listing{
		Title:       title,
		Description: gofakeit.Paragraph(1, 3, 8, " "),
		Price:       math.Round(gofakeit.Price(5, 500)*100) / 100,
		Category:    category.Name,
		Condition:   f.fx.Conditions[f.r.Intn(len(f.fx.Conditions))],
		SellerID:    seller.ID,
	}

	// realistic created_at spread
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	daysBack := f.r.Intn(maxDays)
	hoursBack := f.r.Intn(24)
	minsBack := f.r.Intn(60)
	listing.CreatedAt = time.Now().Add(-time.Duration(daysBack)*24*time.Hour - time.Duration(hoursBack)*time.Hour - time.Duration(minsBack)*time.Minute)

	// between one and three images per listing
	numImages := 1 + f.r.Intn(3)
	for i := 0; i < numImages; i++ {
		listing.Images = append(listing.Images, models.ListingImage{
			URL: fmt.Sprintf("https://picsum.photos/seed/%s/800/600", gofakeit.UUID()),
		})
	}

	for _, override := range overrides {
		override(listing)
	}
	return listing
}

// CreateListing constructs and persists a sample `models.Listing` for the
// given seller, including its image rows.
func (f *Factory) CreateListing(seller *models.User, overrides ...func(*models.Listing)) (*models.Listing, error) {
	listing := f.BuildListing(seller, overrides...)

	if f.opts.DryRun {
		f.nextID++
		listing.ID = f.nextID
		log.Printf("[dry-run] CreateListing: seller=%d category=%s title=%q", listing.SellerID, listing.Category, listing.Title)
		return listing, nil
	}

	if err := f.db.Create(listing).Error; err != nil {
		return nil, err
	}
	return listing, nil
}

// CreateListingsBatch persists multiple listings in a single DB call when possible.
func (f *Factory) CreateListingsBatch(listings []*models.Listing) error {
	if f.opts.DryRun {
		for _, l := range listings {
			f.nextID++
			l.ID = f.nextID
		}
		log.Printf("[dry-run] CreateListingsBatch: %d listings (no DB write)", len(listings))
		return nil
	}
	return f.db.Create(&listings).Error
}
