// Package favorite defines the domain records shared by the store and the service.
package favorite

import "time"

// Field names as they appear in request bodies and stored attributes.
const (
	FieldMovieID   = "movieId"
	FieldTitle     = "title"
	FieldYear      = "year"
	FieldGenres    = "genres"
	FieldPosterURL = "posterUrl"
	FieldNotes     = "notes"
	FieldRating    = "rating"
)

// PatchableFields lists the only fields an update may touch.
// movieId is immutable and never appears here.
var PatchableFields = []string{
	FieldTitle,
	FieldYear,
	FieldGenres,
	FieldPosterURL,
	FieldNotes,
	FieldRating,
}

// Favorite is a movie a user has marked as favorite.
// (UserID, MovieID) is unique across all favorites.
type Favorite struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	MovieID string `json:"movieId"`

	Title     *string  `json:"title,omitempty"`
	Year      *int     `json:"year,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	PosterURL *string  `json:"posterUrl,omitempty"`

	Notes  *string  `json:"notes"`
	Rating *float64 `json:"rating"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput carries the caller-supplied fields of a new favorite.
type CreateInput struct {
	MovieID   string   `json:"movieId" validate:"required,min=1"`
	Title     *string  `json:"title,omitempty" validate:"omitnil,min=1,max=200"`
	Year      *int     `json:"year,omitempty" validate:"omitnil,min=1888,max=2100"`
	Genres    []string `json:"genres,omitempty" validate:"omitempty,max=10,unique,dive,min=1,max=50"`
	PosterURL *string  `json:"posterUrl,omitempty" validate:"omitnil,uri"`
	Notes     *string  `json:"notes,omitempty" validate:"omitnil,max=1000"`
	Rating    *float64 `json:"rating,omitempty" validate:"omitnil,min=0,max=10"`
}

// Patch is a partial update keyed by field name. The presence of a key is
// meaningful on its own: a key mapped to nil stores an explicit null.
type Patch map[string]any

// Has reports whether the patch names field, whatever its value.
func (p Patch) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Order is the sort direction of a listing.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Listing bounds.
const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ListOptions controls pagination of a user's favorites.
type ListOptions struct {
	// Limit is clamped to [1, MaxLimit]; zero means DefaultLimit.
	Limit int

	// Cursor is the opaque token returned by a previous page.
	Cursor string

	// Order defaults to OrderDesc (newest first).
	Order Order
}

// Page is one page of favorites. An empty NextCursor marks the end of the set.
type Page struct {
	Items      []Favorite `json:"items"`
	NextCursor string     `json:"nextCursor,omitempty"`
}
