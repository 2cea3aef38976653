package transport

import "net/http"

// Guards are the access middlewares handlers mount their routes behind.
type Guards struct {
	// Auth rejects requests without a valid access token.
	Auth func(http.Handler) http.Handler
	// Optional attaches the user when a token is present and admits guests otherwise.
	Optional func(http.Handler) http.Handler
	// Admin must run after Auth.
	Admin func(http.Handler) http.Handler
}

// PageResponse wraps one page of a listing.
type PageResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// pageParams reads page and page_size, applying the repository defaults.
func pageParams(r *http.Request) (int, int) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
