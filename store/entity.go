package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/favorites/favorite"
	"github.com/jacentio/favorites/internal/keys"
)

// Record type discriminators.
const (
	TypeFavorite = "FAVORITE"
	TypeMarker   = "FAVORITE_UQ"
)

// Client is the subset of *dynamodb.Client used by the Store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// FavoriteItem is the stored shape of a favorite entity.
type FavoriteItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	Type   string `dynamodbav:"Type"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	ID      string `dynamodbav:"id"`
	UserID  string `dynamodbav:"userId"`
	MovieID string `dynamodbav:"movieId"`

	Title     *string  `dynamodbav:"title,omitempty"`
	Year      *int     `dynamodbav:"year,omitempty"`
	Genres    []string `dynamodbav:"genres"`
	PosterURL *string  `dynamodbav:"posterUrl,omitempty"`
	Notes     *string  `dynamodbav:"notes"`
	Rating    *float64 `dynamodbav:"rating"`

	CreatedAt time.Time `dynamodbav:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// MarkerItem guards the (user, movie) pair. FavoriteID points back at the
// owning entity for audit; nothing traverses it.
type MarkerItem struct {
	PK         string    `dynamodbav:"PK"`
	SK         string    `dynamodbav:"SK"`
	Type       string    `dynamodbav:"Type"`
	UserID     string    `dynamodbav:"userId"`
	MovieID    string    `dynamodbav:"movieId"`
	FavoriteID string    `dynamodbav:"favId"`
	CreatedAt  time.Time `dynamodbav:"createdAt"`
}

// ToItem adds the key, index and type attributes to a favorite.
func ToItem(f favorite.Favorite) FavoriteItem {
	return FavoriteItem{
		PK:        keys.UserPK(f.UserID),
		SK:        keys.FavoriteSK(f.ID),
		Type:      TypeFavorite,
		GSI1PK:    keys.MovieIndexPK(f.UserID),
		GSI1SK:    keys.MovieIndexSK(f.MovieID),
		ID:        f.ID,
		UserID:    f.UserID,
		MovieID:   f.MovieID,
		Title:     f.Title,
		Year:      f.Year,
		Genres:    f.Genres,
		PosterURL: f.PosterURL,
		Notes:     f.Notes,
		Rating:    f.Rating,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// FromItem drops the physical attributes and returns the domain record.
func FromItem(item FavoriteItem) favorite.Favorite {
	return favorite.Favorite{
		ID:        item.ID,
		UserID:    item.UserID,
		MovieID:   item.MovieID,
		Title:     item.Title,
		Year:      item.Year,
		Genres:    item.Genres,
		PosterURL: item.PosterURL,
		Notes:     item.Notes,
		Rating:    item.Rating,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// NewMarker builds the uniqueness marker for a favorite.
func NewMarker(userID, movieID, favoriteID string, createdAt time.Time) MarkerItem {
	return MarkerItem{
		PK:         keys.UniquePK(userID),
		SK:         keys.UniqueSK(movieID),
		Type:       TypeMarker,
		UserID:     userID,
		MovieID:    movieID,
		FavoriteID: favoriteID,
		CreatedAt:  createdAt,
	}
}

// DecodeItem unmarshals a raw DynamoDB item. Callers check Type before use.
func DecodeItem(raw map[string]types.AttributeValue) (FavoriteItem, error) {
	var item FavoriteItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return FavoriteItem{}, fmt.Errorf("unmarshal favorite: %w", err)
	}
	return item, nil
}

// favoriteKey returns the primary key of a favorite entity.
func favoriteKey(userID, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: keys.UserPK(userID)},
		"SK": &types.AttributeValueMemberS{Value: keys.FavoriteSK(id)},
	}
}

// markerKey returns the primary key of a uniqueness marker.
func markerKey(userID, movieID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: keys.UniquePK(userID)},
		"SK": &types.AttributeValueMemberS{Value: keys.UniqueSK(movieID)},
	}
}
