package models

import "time"

// Listing represents an item offered for sale by a user.
// Listings are hard-deleted together with their images when the seller
// removes them.
type Listing struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text;not null" json:"description"`
	Price       float64        `gorm:"not null" json:"price"`
	Category    string         `gorm:"not null;index" json:"category"`
	Condition   string         `gorm:"not null" json:"condition"`
	SellerID    uint           `gorm:"not null;index" json:"seller_id"`
	Seller      User           `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Images      []ListingImage `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ListingImage is a stored image file attached to a listing. The URL is a
// relative path under the upload root, servable as a static asset.
type ListingImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListingID uint      `gorm:"not null;index" json:"listing_id"`
	URL       string    `gorm:"not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// FirstImageURL returns the URL of the listing's first image, or "" if it
// has none loaded.
func (l *Listing) FirstImageURL() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0].URL
}

// ImageURLs returns all image URLs in insertion order.
func (l *Listing) ImageURLs() []string {
	urls := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		urls = append(urls, img.URL)
	}
	return urls
}
