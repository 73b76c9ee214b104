package server

import (
	"mime/multipart"
	"strconv"

	"campusmarket/internal/models"
	"campusmarket/internal/service"

	"github.com/gofiber/fiber/v2"
)

// listingSummary is the browse-page shape: only the first image is included.
func listingSummary(l *models.Listing) fiber.Map {
	var imageURL any
	if u := l.FirstImageURL(); u != "" {
		imageURL = u
	}
	return fiber.Map{
		"id":          l.ID,
		"title":       l.Title,
		"description": l.Description,
		"price":       l.Price,
		"category":    l.Category,
		"condition":   l.Condition,
		"image_url":   imageURL,
		"seller_id":   l.SellerID,
		"created_at":  l.CreatedAt,
		"updated_at":  l.UpdatedAt,
		"seller":      l.Seller.Public(),
	}
}

// listingDetail is the single-listing shape with every image URL.
func listingDetail(l *models.Listing) fiber.Map {
	return fiber.Map{
		"id":          l.ID,
		"title":       l.Title,
		"description": l.Description,
		"price":       l.Price,
		"category":    l.Category,
		"condition":   l.Condition,
		"image_urls":  l.ImageURLs(),
		"seller_id":   l.SellerID,
		"created_at":  l.CreatedAt,
		"updated_at":  l.UpdatedAt,
		"seller":      l.Seller.Public(),
	}
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// GetListings handles GET /api/marketplace/listings
// @Summary Browse listings
// @Description List marketplace listings with filters and pagination
// @Tags marketplace
// @Produce json
// @Param category query string false "Exact category match"
// @Param condition query string false "Exact condition match"
// @Param minPrice query number false "Inclusive lower price bound"
// @Param maxPrice query number false "Inclusive upper price bound"
// @Param search query string false "Case-insensitive substring match on title or description"
// @Param page query int false "1-indexed page number" default(1)
// @Param per_page query int false "Page size" default(10)
// @Success 200 {object} object{listings=[]object,total=int,pages=int,current_page=int}
// @Router /marketplace/listings [get]
func (s *Server) GetListings(c *fiber.Ctx) error {
	filter := parseListingFilter(c)

	page, err := s.marketplace.ListListings(c.Context(), filter)
	if err != nil {
		return respondWithAppError(c, err)
	}

	listings := make([]fiber.Map, 0, len(page.Listings))
	for _, l := range page.Listings {
		listings = append(listings, listingSummary(l))
	}

	return c.JSON(fiber.Map{
		"listings":     listings,
		"total":        page.Total,
		"pages":        page.Pages,
		"current_page": page.CurrentPage,
	})
}

// GetListing handles GET /api/marketplace/listings/:id
// @Summary Get a listing
// @Description Fetch a single listing with all image URLs and seller info
// @Tags marketplace
// @Produce json
// @Param id path int true "Listing ID"
// @Success 200 {object} object{id=int,title=string,image_urls=[]string}
// @Failure 404 {object} models.ErrorResponse
// @Router /marketplace/listings/{id} [get]
func (s *Server) GetListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	listing, err := s.marketplace.GetListing(c.Context(), id)
	if err != nil {
		return respondWithAppError(c, err)
	}

	return c.JSON(listingDetail(listing))
}

// CreateListing handles POST /api/marketplace/listings
// @Summary Create a listing
// @Description Create a listing from a multipart form with at least one image
// @Tags marketplace
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param price formData number true "Price, must be greater than 0"
// @Param category formData string true "Category"
// @Param condition formData string true "Condition"
// @Param images formData file true "One or more image files (png/jpg/jpeg/gif)"
// @Success 201 {object} object{message=string,listing_id=int}
// @Failure 401 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /marketplace/listings [post]
func (s *Server) CreateListing(c *fiber.Ctx) error {
	userID := currentUserID(c)

	form, err := c.MultipartForm()
	if err != nil {
		return respondWithAppError(c, models.NewValidationError("Invalid multipart form"))
	}

	title := formValue(form, "title")
	description := formValue(form, "description")
	priceStr := formValue(form, "price")
	category := formValue(form, "category")
	condition := formValue(form, "condition")

	if title == "" || description == "" || priceStr == "" || category == "" || condition == "" {
		return respondWithAppError(c, models.NewValidationError("All fields are required"))
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return respondWithAppError(c, models.NewValidationError("Price must be a valid number"))
	}

	listing, err := s.marketplace.CreateListing(c.Context(), service.CreateListingInput{
		SellerID:    userID,
		Title:       title,
		Description: description,
		Price:       price,
		Category:    category,
		Condition:   condition,
		Images:      form.File["images"],
	})
	if err != nil {
		return respondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Listing created successfully",
		"listing_id": listing.ID,
	})
}

// UpdateListing handles PUT /api/marketplace/listings/:id
// @Summary Update a listing
// @Description Update listing fields; supplying images replaces the image set
// @Tags marketplace
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /marketplace/listings/{id} [put]
func (s *Server) UpdateListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return respondWithAppError(c, models.NewValidationError("Invalid multipart form"))
	}

	in := service.UpdateListingInput{
		UserID:    currentUserID(c),
		ListingID: id,
		Images:    form.File["images"],
	}

	// Only fields present in the form are updated.
	if vals := form.Value["title"]; len(vals) > 0 {
		in.Title = &vals[0]
	}
	if vals := form.Value["description"]; len(vals) > 0 {
		in.Description = &vals[0]
	}
	if vals := form.Value["category"]; len(vals) > 0 {
		in.Category = &vals[0]
	}
	if vals := form.Value["condition"]; len(vals) > 0 {
		in.Condition = &vals[0]
	}
	if vals := form.Value["price"]; len(vals) > 0 {
		price, parseErr := strconv.ParseFloat(vals[0], 64)
		if parseErr != nil {
			return respondWithAppError(c, models.NewValidationError("Price must be a valid number"))
		}
		in.Price = &price
	}

	listing, err := s.marketplace.UpdateListing(c.Context(), in)
	if err != nil {
		return respondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Listing updated successfully",
		"listing": listingDetail(listing),
	})
}

// DeleteListing handles DELETE /api/marketplace/listings/:id
// @Summary Delete a listing
// @Description Delete a listing, its image records and stored files
// @Tags marketplace
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /marketplace/listings/{id} [delete]
func (s *Server) DeleteListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.marketplace.DeleteListing(c.Context(), currentUserID(c), id); err != nil {
		return respondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Listing deleted successfully",
	})
}
