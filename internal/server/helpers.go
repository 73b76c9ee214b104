package server

import (
	"errors"

	"campusmarket/internal/models"
	"campusmarket/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const maxPerPage = 100

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid listing ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseListingFilter extracts the browse filters and pagination query
// parameters. Page is 1-indexed with a default page size of 10.
func parseListingFilter(c *fiber.Ctx) repository.ListingFilter {
	filter := repository.ListingFilter{
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
		Search:    c.Query("search"),
		Page:      c.QueryInt("page", 1),
		PerPage:   c.QueryInt("per_page", 10),
	}

	if v := c.QueryFloat("minPrice", -1); v >= 0 {
		filter.MinPrice = &v
	}
	if v := c.QueryFloat("maxPrice", -1); v >= 0 {
		filter.MaxPrice = &v
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 10
	}
	if filter.PerPage > maxPerPage {
		filter.PerPage = maxPerPage
	}

	return filter
}

// respondWithAppError maps an error from a lower layer to the matching HTTP
// status code and writes the JSON error body.
func respondWithAppError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}

// currentUserID returns the authenticated user's ID set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("userID").(uint); ok {
		return id
	}
	return 0
}
