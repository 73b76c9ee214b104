package seed

import (
	"fmt"
	"log"

	"campusmarket/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumListings int
	ShouldClean bool
	// DryRun builds entities and assigns synthetic IDs without writing.
	DryRun bool
	// SkipBcrypt stores the plain demo password instead of hashing it.
	// Logins will not work, but seeding thousands of users is much faster.
	SkipBcrypt bool
	// MaxDays bounds how far in the past listing created_at timestamps go.
	MaxDays int
}

// Seed populates the database with test data
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("🌱 Starting database seeding with %d users and %d listings...", opts.NumUsers, opts.NumListings)

	// Clear existing data to avoid conflicts if requested
	if opts.ShouldClean && !opts.DryRun {
		if err := clearData(db); err != nil {
			log.Println("⚠️  Warning: Could not clear all existing data, but continuing anyway...")
		}
	}

	factory, err := NewFactory(db, opts)
	if err != nil {
		return err
	}

	users, err := createUsers(db, factory, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d test users created", len(users))

	listings, err := createListings(factory, users, opts.NumListings)
	if err != nil {
		return fmt.Errorf("failed to create listings: %w", err)
	}
	log.Printf("✓ %d listings created", len(listings))

	log.Println("🎉 Database seeding completed successfully!")
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	sql := `TRUNCATE TABLE listing_images, listings, users RESTART IDENTITY CASCADE;`
	return db.Exec(sql).Error
}

func createUsers(db *gorm.DB, factory *Factory, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)

	// Always include some well-known accounts so developers can log in
	// without digging through generated data.
	if count >= 3 && !factory.opts.DryRun {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		baseUsers := []string{"alice", "bob", "test"}
		for _, u := range baseUsers {
			user := models.User{
				Username: u,
				Email:    fmt.Sprintf("%s@campus.edu", u),
				Password: string(hashedPassword),
				Role:     models.RoleStudent,
			}
			if err := db.Create(&user).Error; err == nil {
				users = append(users, &user)
			}
		}
	}

	for i := len(users); i < count; i++ {
		// suffix keeps generated usernames unique across runs
		suffix := i
		user, err := factory.CreateUser(func(u *models.User) {
			u.Username = fmt.Sprintf("%s%d", u.Username, suffix)
			u.Email = fmt.Sprintf("%s@campus.edu", u.Username)
		})
		if err != nil {
			log.Printf("Failed to create user %d: %v", i, err)
			continue
		}
		users = append(users, user)

		if i > 0 && i%100 == 0 {
			log.Printf("Created %d users...", i)
		}
	}

	if len(users) == 0 && count > 0 {
		return nil, fmt.Errorf("no users could be created")
	}
	return users, nil
}

func createListings(factory *Factory, users []*models.User, count int) ([]*models.Listing, error) {
	listings := make([]*models.Listing, 0, count)
	if len(users) == 0 {
		return listings, nil
	}

	for i := 0; i < count; i++ {
		seller := users[factory.r.Intn(len(users))]

		listing, err := factory.CreateListing(seller)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)

		if i > 0 && i%100 == 0 {
			log.Printf("Created %d listings...", i)
		}
	}

	return listings, nil
}
