package server

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"campusmarket/internal/cache"
	"campusmarket/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingForm(t *testing.T, fields map[string]string, imageNames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, name := range imageNames {
		fw, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake-image-data"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func defaultListingFields() map[string]string {
	return map[string]string{
		"title":       "Mountain Bike",
		"description": "Barely used, campus pickup",
		"price":       "120.50",
		"category":    "sports",
		"condition":   "good",
	}
}

func doMultipart(t *testing.T, app *fiber.App, method, path, token string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

// createListing creates a listing through the API and returns its ID.
func createListing(t *testing.T, app *fiber.App, token string, fields map[string]string, imageNames ...string) uint {
	t.Helper()
	if len(imageNames) == 0 {
		imageNames = []string{"photo.jpg"}
	}
	body, contentType := listingForm(t, fields, imageNames...)
	resp := doMultipart(t, app, http.MethodPost, "/api/marketplace/listings", token, body, contentType)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeBody(t, resp)
	return uint(data["listing_id"].(float64))
}

func TestCreateListingAndGet(t *testing.T) {
	_, app := newTestServer(t)
	token, userID := registerUser(t, app, "seller", "seller@campus.edu")

	id := createListing(t, app, token, defaultListingFields(), "front.jpg", "back.png")

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/marketplace/listings/%d", id), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detail := decodeBody(t, resp)
	assert.Equal(t, "Mountain Bike", detail["title"])
	assert.Equal(t, 120.50, detail["price"])
	assert.Equal(t, float64(userID), detail["seller_id"])

	seller := detail["seller"].(map[string]any)
	assert.Equal(t, "seller", seller["username"])
	assert.Equal(t, "seller@campus.edu", seller["email"])

	imageURLs := detail["image_urls"].([]any)
	require.Len(t, imageURLs, 2)

	// uploaded files are served statically
	staticReq := httptest.NewRequest(http.MethodGet, imageURLs[0].(string), nil)
	staticResp, err := app.Test(staticReq)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, staticResp.StatusCode)
	_ = staticResp.Body.Close()
}

func TestGetListing_CachedAtRepositoryLayer(t *testing.T) {
	_, app := newTestServer(t)
	mr := miniredis.RunT(t)
	cache.InitRedis(mr.Addr())
	t.Cleanup(cache.Close)

	token, _ := registerUser(t, app, "seller", "seller@campus.edu")
	id := createListing(t, app, token, defaultListingFields(), "photo.jpg")
	path := fmt.Sprintf("/api/marketplace/listings/%d", id)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// the repository caches the full listing with its associations
	var cached models.Listing
	found, err := cache.GetJSON(context.Background(), cache.ListingKey(id), &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Mountain Bike", cached.Title)
	require.Len(t, cached.Images, 1)

	// a served-from-cache read returns the same payload as the first
	req = httptest.NewRequest(http.MethodGet, path, nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody(t, resp)
	assert.Equal(t, "Mountain Bike", detail["title"])

	// deleting drops the key
	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	found, err = cache.GetJSON(context.Background(), cache.ListingKey(id), &cached)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetListing_NotFound(t *testing.T) {
	_, app := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/marketplace/listings/999", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateListing_Unauthenticated(t *testing.T) {
	_, app := newTestServer(t)

	body, contentType := listingForm(t, defaultListingFields(), "photo.jpg")
	resp := doMultipart(t, app, http.MethodPost, "/api/marketplace/listings", "", body, contentType)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateListing_Validation(t *testing.T) {
	s, app := newTestServer(t)
	token, _ := registerUser(t, app, "seller", "seller@campus.edu")

	tests := []struct {
		name   string
		fields map[string]string
		images []string
	}{
		{
			name: "Missing Title",
			fields: map[string]string{
				"description": "d", "price": "10", "category": "books", "condition": "good",
			},
			images: []string{"photo.jpg"},
		},
		{
			name: "Negative Price",
			fields: func() map[string]string {
				f := defaultListingFields()
				f["price"] = "-5"
				return f
			}(),
			images: []string{"photo.jpg"},
		},
		{
			name: "Non-Numeric Price",
			fields: func() map[string]string {
				f := defaultListingFields()
				f["price"] = "cheap"
				return f
			}(),
			images: []string{"photo.jpg"},
		},
		{
			name:   "No Images",
			fields: defaultListingFields(),
			images: nil,
		},
		{
			name:   "Disallowed Image Extension",
			fields: defaultListingFields(),
			images: []string{"notes.txt"},
		},
		{
			name:   "One Bad Image Aborts All",
			fields: defaultListingFields(),
			images: []string{"good.jpg", "bad.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := listingForm(t, tt.fields, tt.images...)
			resp := doMultipart(t, app, http.MethodPost, "/api/marketplace/listings", token, body, contentType)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}

	// rollback check: no rows and no files may survive any rejected create
	var listingCount, imageCount int64
	s.db.Model(&models.Listing{}).Count(&listingCount)
	s.db.Model(&models.ListingImage{}).Count(&imageCount)
	assert.Zero(t, listingCount)
	assert.Zero(t, imageCount)

	entries, err := os.ReadDir(s.store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetListings_FiltersAndPagination(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := registerUser(t, app, "seller", "seller@campus.edu")

	mk := func(title, category, condition, price string) {
		f := map[string]string{
			"title":       title,
			"description": "campus item",
			"price":       price,
			"category":    category,
			"condition":   condition,
		}
		createListing(t, app, token, f)
	}
	mk("Calculus Textbook", "books", "good", "30")
	mk("Road Bike", "sports", "fair", "150")
	mk("Desk Lamp", "furniture", "new", "15")

	get := func(query string) map[string]any {
		req := httptest.NewRequest(http.MethodGet, "/api/marketplace/listings"+query, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decodeBody(t, resp)
	}

	t.Run("Unfiltered Envelope", func(t *testing.T) {
		body := get("")
		assert.Equal(t, float64(3), body["total"])
		assert.Equal(t, float64(1), body["pages"])
		assert.Equal(t, float64(1), body["current_page"])
		listings := body["listings"].([]any)
		require.Len(t, listings, 3)

		first := listings[0].(map[string]any)
		assert.NotEmpty(t, first["image_url"])
		assert.NotNil(t, first["seller"])
	})

	t.Run("Category Filter", func(t *testing.T) {
		body := get("?category=books")
		listings := body["listings"].([]any)
		require.Len(t, listings, 1)
		assert.Equal(t, "Calculus Textbook", listings[0].(map[string]any)["title"])
	})

	t.Run("Condition Filter", func(t *testing.T) {
		body := get("?condition=new")
		listings := body["listings"].([]any)
		require.Len(t, listings, 1)
		assert.Equal(t, "Desk Lamp", listings[0].(map[string]any)["title"])
	})

	t.Run("Price Bounds Are Inclusive", func(t *testing.T) {
		body := get("?minPrice=15&maxPrice=30")
		assert.Equal(t, float64(2), body["total"])
	})

	t.Run("Search Matches Title Case-Insensitively", func(t *testing.T) {
		body := get("?search=bike")
		listings := body["listings"].([]any)
		require.Len(t, listings, 1)
		assert.Equal(t, "Road Bike", listings[0].(map[string]any)["title"])
	})

	t.Run("Search Matches Description", func(t *testing.T) {
		body := get("?search=CAMPUS")
		assert.Equal(t, float64(3), body["total"])
	})

	t.Run("Pagination", func(t *testing.T) {
		body := get("?page=2&per_page=2")
		assert.Equal(t, float64(3), body["total"])
		assert.Equal(t, float64(2), body["pages"])
		assert.Equal(t, float64(2), body["current_page"])
		listings := body["listings"].([]any)
		assert.Len(t, listings, 1)
	})

	t.Run("Page Beyond Range Is Empty", func(t *testing.T) {
		body := get("?page=5&per_page=10")
		listings := body["listings"].([]any)
		assert.Empty(t, listings)
		assert.Equal(t, float64(3), body["total"])
	})
}

func TestUpdateListing(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := registerUser(t, app, "seller", "seller@campus.edu")
	otherToken, _ := registerUser(t, app, "other", "other@campus.edu")

	id := createListing(t, app, token, defaultListingFields())
	path := fmt.Sprintf("/api/marketplace/listings/%d", id)

	t.Run("Owner Updates Fields", func(t *testing.T) {
		body, contentType := listingForm(t, map[string]string{"price": "99.99", "title": "Mountain Bike (reduced)"})
		resp := doMultipart(t, app, http.MethodPut, path, token, body, contentType)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := decodeBody(t, resp)
		assert.Equal(t, "Listing updated successfully", data["message"])
		listing := data["listing"].(map[string]any)
		assert.Equal(t, 99.99, listing["price"])
		assert.Equal(t, "Mountain Bike (reduced)", listing["title"])
		// untouched fields survive a partial update
		assert.Equal(t, "sports", listing["category"])
		assert.Len(t, listing["image_urls"].([]any), 1)
	})

	t.Run("New Images Replace Old Ones", func(t *testing.T) {
		body, contentType := listingForm(t, map[string]string{}, "new1.png", "new2.png")
		resp := doMultipart(t, app, http.MethodPut, path, token, body, contentType)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := decodeBody(t, resp)
		listing := data["listing"].(map[string]any)
		assert.Len(t, listing["image_urls"].([]any), 2)
	})

	t.Run("Non-Owner Is Forbidden", func(t *testing.T) {
		body, contentType := listingForm(t, map[string]string{"price": "1"})
		resp := doMultipart(t, app, http.MethodPut, path, otherToken, body, contentType)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("Unknown Listing", func(t *testing.T) {
		body, contentType := listingForm(t, map[string]string{"price": "1"})
		resp := doMultipart(t, app, http.MethodPut, "/api/marketplace/listings/999", token, body, contentType)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("Invalid Price", func(t *testing.T) {
		body, contentType := listingForm(t, map[string]string{"price": "free"})
		resp := doMultipart(t, app, http.MethodPut, path, token, body, contentType)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestDeleteListing(t *testing.T) {
	s, app := newTestServer(t)
	token, _ := registerUser(t, app, "seller", "seller@campus.edu")
	otherToken, _ := registerUser(t, app, "other", "other@campus.edu")

	id := createListing(t, app, token, defaultListingFields(), "a.jpg", "b.jpg")
	path := fmt.Sprintf("/api/marketplace/listings/%d", id)

	t.Run("Non-Owner Is Forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		req.Header.Set("Authorization", "Bearer "+otherToken)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("Owner Deletes Everything", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decodeBody(t, resp)
		assert.Equal(t, "Listing deleted successfully", data["message"])

		var listingCount, imageCount int64
		s.db.Model(&models.Listing{}).Count(&listingCount)
		s.db.Model(&models.ListingImage{}).Count(&imageCount)
		assert.Zero(t, listingCount)
		assert.Zero(t, imageCount)

		entries, err := os.ReadDir(s.store.Root())
		require.NoError(t, err)
		assert.Empty(t, entries)

		getReq := httptest.NewRequest(http.MethodGet, path, nil)
		getResp, err := app.Test(getReq)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
		_ = getResp.Body.Close()
	})
}
